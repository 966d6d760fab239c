// Package invoice turns raw model output into an ExtractionResult. It
// tolerates prose and markdown fences around the JSON object, repairs
// common syntax slips, normalizes amounts and dates, and scores the result.
//
// Only output without any '{' is a ParseError. Everything else yields a
// result, possibly with every business field absent.
package invoice

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"invoicepipe/internal/logger"
	"invoicepipe/pkg/models"
)

// Keys are the four business keys the model is asked for.
var Keys = []string{"invoice_number", "company_name", "invoice_date", "total_amount"}

// Parser converts model output to extraction results.
type Parser struct {
	weights Weights
	// excluded names are client names that must never be reported as vendor.
	excluded map[string]struct{}
	log      zerolog.Logger
}

// NewParser creates a parser with the given confidence weights and client exclusions.
func NewParser(w Weights, clientExclusions []string) *Parser {
	excluded := make(map[string]struct{}, len(clientExclusions))
	for _, c := range clientExclusions {
		excluded[foldName(c)] = struct{}{}
	}
	return &Parser{
		weights:  w,
		excluded: excluded,
		log:      logger.WithComponent("invoice-parser"),
	}
}

// Parse uses default weights and no client exclusions.
func Parse(raw string) (*models.ExtractionResult, error) {
	return NewParser(DefaultWeights(), nil).Parse(raw)
}

// Parse extracts the JSON object spanning the first '{' to the last '}'.
func (p *Parser) Parse(raw string) (*models.ExtractionResult, error) {
	const op = "Parse"

	candidate, ok := jsonCandidate(raw)
	if !ok {
		return nil, NewParseError(op, ErrNoJSON, raw)
	}

	fields, wellFormed := p.leadingObject(raw)
	if !wellFormed {
		fields, wellFormed = p.decode(candidate)
	}

	res := &models.ExtractionResult{}
	res.InvoiceNumber = p.stringField(fields, "invoice_number")
	res.CompanyName = p.companyField(fields)
	res.InvoiceDate = p.dateField(fields)
	res.TotalAmount = p.amountField(fields)

	sig := Signals{
		WellFormed:  wellFormed,
		PresentKeys: res.PresentKeys(),
	}
	if res.TotalAmount != nil {
		sig.PlausibleTotal = IsPlausibleAmount(*res.TotalAmount)
	}
	if res.InvoiceDate != nil {
		sig.ISODate = IsISODate(*res.InvoiceDate)
	}
	res.Confidence = Confidence(sig, p.weights)

	p.log.Debug().
		Bool("well_formed", wellFormed).
		Int("present_keys", sig.PresentKeys).
		Float64("confidence", res.Confidence).
		Msg("Parsed model output")

	return res, nil
}

// jsonCandidate returns raw[first '{' : last '}'] inclusive. Output cut off
// before its closing brace is closed so the fields already emitted survive.
func jsonCandidate(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return "", false
	}
	end := strings.LastIndex(raw, "}")
	if end < start {
		return strings.TrimRight(raw[start:], " \n\t`,") + "}", true
	}
	return raw[start : end+1], true
}

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	smartQuotes     = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	pyLiteralRe     = regexp.MustCompile(`:\s*(None|True|False)\b`)
)

// leadingObject decodes the first complete JSON object starting at the
// first '{', ignoring whatever follows it. It reports true only for a
// schema-valid object.
func (p *Parser) leadingObject(raw string) (map[string]any, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return nil, false
	}
	var v map[string]any
	if err := json.NewDecoder(strings.NewReader(raw[start:])).Decode(&v); err != nil {
		return nil, false
	}
	if err := validateShape(v); err != nil {
		return nil, false
	}
	return v, true
}

// decode parses the candidate strictly, then leniently, then by per-key
// salvage. Only the strict, schema-valid path counts as well-formed.
func (p *Parser) decode(candidate string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(candidate), &v); err == nil {
		if err := validateShape(map[string]any(v)); err != nil {
			p.log.Debug().Err(err).Msg("Model output parsed but failed type check")
			return v, false
		}
		return v, true
	}

	repaired := smartQuotes.Replace(candidate)
	repaired = trailingCommaRe.ReplaceAllString(repaired, "$1")
	repaired = pyLiteralRe.ReplaceAllStringFunc(repaired, func(m string) string {
		switch {
		case strings.HasSuffix(m, "None"):
			return ": null"
		case strings.HasSuffix(m, "True"):
			return ": true"
		}
		return ": false"
	})
	if err := json.Unmarshal([]byte(repaired), &v); err == nil {
		p.log.Debug().Msg("Model output needed JSON repair")
		return v, false
	}

	p.log.Debug().Str("candidate", candidate).Msg("Falling back to per-key salvage")
	return salvage(candidate), false
}

var salvageRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(Keys))
	for _, k := range Keys {
		m[k] = regexp.MustCompile(`["']?` + k + `["']?\s*:\s*("(?:[^"\\]|\\.)*"|'[^']*'|null|\(?-?[$€£]?\s*\d(?:[\d.,\s]*\d)?\)?)`)
	}
	return m
}()

// salvage pulls individual key/value pairs out of text that is not valid JSON.
func salvage(candidate string) map[string]any {
	out := map[string]any{}
	for key, re := range salvageRes {
		m := re.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		val := strings.TrimSpace(m[1])
		switch {
		case val == "null":
			out[key] = nil
		case strings.HasPrefix(val, `"`):
			if s, err := strconv.Unquote(val); err == nil {
				out[key] = s
			} else {
				out[key] = strings.Trim(val, `"`)
			}
		case strings.HasPrefix(val, "'"):
			out[key] = strings.Trim(val, "'")
		default:
			out[key] = strings.TrimRight(val, " ,\n\t")
		}
	}
	return out
}

var absentValues = map[string]struct{}{
	"": {}, "null": {}, "none": {}, "n/a": {}, "na": {}, "unknown": {}, "not found": {}, "-": {},
}

func (p *Parser) stringField(fields map[string]any, key string) *string {
	var s string
	switch v := fields[key].(type) {
	case string:
		s = strings.TrimSpace(v)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return nil
	}
	if _, absent := absentValues[strings.ToLower(s)]; absent {
		return nil
	}
	return &s
}

func (p *Parser) companyField(fields map[string]any) *string {
	name := p.stringField(fields, "company_name")
	if name == nil {
		return nil
	}
	if _, excluded := p.excluded[foldName(*name)]; excluded {
		p.log.Debug().Str("company_name", *name).Msg("Dropping client name reported as vendor")
		return nil
	}
	return name
}

func (p *Parser) dateField(fields map[string]any) *string {
	s := p.stringField(fields, "invoice_date")
	if s == nil {
		return nil
	}
	norm, ok := NormalizeDate(*s)
	if !ok {
		p.log.Debug().Err(NewValidationError("invoice_date", *s, "unrecognized date format")).Msg("Keeping date verbatim")
	}
	return &norm
}

func (p *Parser) amountField(fields map[string]any) *float64 {
	switch v := fields["total_amount"].(type) {
	case float64:
		return &v
	case string:
		if _, absent := absentValues[strings.ToLower(strings.TrimSpace(v))]; absent {
			return nil
		}
		amount, err := ParseAmount(v)
		if err != nil {
			p.log.Debug().Err(NewValidationError("total_amount", v, err.Error())).Msg("Dropping non-numeric total")
			return nil
		}
		return &amount
	}
	return nil
}

func foldName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
