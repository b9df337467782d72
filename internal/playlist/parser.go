package playlist

import (
	"bufio"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	tagExtInf    = "#EXTINF:"
	tagStreamInf = "#EXT-X-STREAM-INF:"
	tagEndList   = "#EXT-X-ENDLIST"
)

// Parse reads an HLS playlist line by line. It never fails: a missing or
// malformed #EXTINF duration yields a zero-length segment, and a segment URI that
// cannot be resolved against baseURL is kept as written. Unknown tags are ignored.
// A nil log falls back to slog.Default.
func Parse(text, baseURL string, log *slog.Logger) Result {
	if log == nil {
		log = slog.Default()
	}
	base, baseErr := url.Parse(baseURL)

	var (
		res             Result
		cumulative      float64
		pendingDuration float64
		pendingVariant  *Variant
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, tagExtInf):
			pendingDuration = parseExtInf(line)
			continue
		case strings.HasPrefix(line, tagStreamInf):
			v := parseStreamInf(line)
			pendingVariant = &v
			continue
		case line == tagEndList:
			res.EndList = true
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}

		ref := resolve(line, baseURL, base, baseErr, log)
		if pendingVariant != nil {
			pendingVariant.URL = ref
			res.Variants = append(res.Variants, *pendingVariant)
			pendingVariant = nil
			pendingDuration = 0
			continue
		}

		res.Segments = append(res.Segments, Segment{
			Index:    len(res.Segments),
			URL:      ref,
			Duration: pendingDuration,
			Start:    cumulative,
			End:      cumulative + pendingDuration,
		})
		cumulative += pendingDuration
		pendingDuration = 0
	}

	res.Duration = cumulative
	return res
}

// parseExtInf extracts the duration from "#EXTINF:<float>,[title]".
// Anything unparseable, negative or non-finite is reported as 0.
func parseExtInf(line string) float64 {
	value := strings.TrimPrefix(line, tagExtInf)
	if i := strings.IndexByte(value, ','); i >= 0 {
		value = value[:i]
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

func parseStreamInf(line string) Variant {
	var v Variant
	for _, attr := range splitAttributes(strings.TrimPrefix(line, tagStreamInf)) {
		key, value, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "BANDWIDTH":
			if n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
				v.Bandwidth = n
			}
		case "RESOLUTION":
			v.Resolution = strings.Trim(strings.TrimSpace(value), `"`)
		}
	}
	return v
}

// splitAttributes splits an attribute list on commas that are not inside quotes.
func splitAttributes(list string) []string {
	var (
		out     []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				out = append(out, list[start:i])
				start = i + 1
			}
		}
	}
	return append(out, list[start:])
}

func resolve(ref, rawBase string, base *url.URL, baseErr error, log *slog.Logger) string {
	u, err := url.Parse(ref)
	if err == nil && u.IsAbs() {
		return ref
	}
	if err != nil || baseErr != nil || !base.IsAbs() {
		log.Warn("failed to resolve playlist uri",
			slog.String("uri", ref),
			slog.String("base", rawBase),
			slog.Any("error", firstErr(err, baseErr)))
		return ref
	}
	return base.ResolveReference(u).String()
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
