package slicer

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"invoicepipe/pkg/models"
)

func TestSliceFullPage(t *testing.T) {
	raw := "INVOICE #123\nAcme Co\nTotal: $1,234.56\nDate: Oct 10, 2023"
	d := Slice(raw, DefaultConfig())

	assert.Equal(t, models.MethodFullPage, d.Strategy)
	assert.Equal(t, raw, d.Payload)
	assert.Empty(t, d.Header)
	assert.Empty(t, d.Footer)
}

func TestSliceBoundary(t *testing.T) {
	cfg := Config{MaxPageChars: 10, HeaderChars: 4, FooterChars: 3}

	exact := strings.Repeat("x", 10)
	assert.Equal(t, models.MethodFullPage, Slice(exact, cfg).Strategy)

	over := "HEAD" + strings.Repeat("m", 5) + "TOE"
	d := Slice(over, cfg)
	assert.Equal(t, models.MethodHeaderFooter, d.Strategy)
	assert.Equal(t, "HEAD", d.Header)
	assert.Equal(t, "TOE", d.Footer)
	assert.NotContains(t, d.Payload, "m")
}

func TestSliceHeaderFooterProperties(t *testing.T) {
	cfg := Config{MaxPageChars: 200, HeaderChars: 120, FooterChars: 80}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 50; i++ {
		n := 201 + rng.Intn(2000)
		raw := randomText(rng, n)

		d := Slice(raw, cfg)
		require.Equal(t, models.MethodHeaderFooter, d.Strategy)

		runes := []rune(raw)
		assert.Equal(t, string(runes[:120]), d.Header)
		assert.Equal(t, string(runes[len(runes)-80:]), d.Footer)
		assert.Equal(t, 120+80+FrameOverhead(), utf8.RuneCountInString(d.Payload))

		again := Slice(raw, cfg)
		assert.Equal(t, d, again, "slicing must be deterministic")
	}
}

func TestSliceCountsRunes(t *testing.T) {
	cfg := Config{MaxPageChars: 5, HeaderChars: 2, FooterChars: 2}

	// Five code points, more than five bytes.
	d := Slice("ééééé", cfg)
	assert.Equal(t, models.MethodFullPage, d.Strategy)

	d = Slice("Montant dû", cfg)
	assert.Equal(t, "Mo", d.Header)
	assert.Equal(t, "dû", d.Footer)
	assert.True(t, utf8.ValidString(d.Payload))
}

func TestSliceOversizedCuts(t *testing.T) {
	cfg := Config{MaxPageChars: 3, HeaderChars: 100, FooterChars: 100}
	d := Slice("abcdef", cfg)
	assert.Equal(t, "abcdef", d.Header)
	assert.Equal(t, "abcdef", d.Footer)
}

func randomText(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 \n$.,éû"
	letters := []rune(alphabet)
	out := make([]rune, n)
	for i := range out {
		out[i] = letters[rng.Intn(len(letters))]
	}
	return string(out)
}

func ExampleSlice() {
	cfg := Config{MaxPageChars: 20, HeaderChars: 10, FooterChars: 12}
	d := Slice("INVOICE #9 ... many line items ... Total: 42.00", cfg)
	fmt.Println(d.Strategy)
	fmt.Println(d.Payload)
	// Output:
	// header_footer
	// --- BEGIN HEADER ---
	// INVOICE #9
	// --- END HEADER ---
	//
	// ... [middle content skipped] ...
	//
	// --- BEGIN FOOTER ---
	// Total: 42.00
	// --- END FOOTER ---
}
