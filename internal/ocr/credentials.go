package ocr

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// googleCredentialOptions resolves credentials the same way for every
// Google backend: inline JSON first, then a key file, then ADC.
func googleCredentialOptions() []option.ClientOption {
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credJSON))}
	}
	if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credFile)}
	}
	return nil
}

var bcp47 = map[string]string{
	"eng": "en",
	"fra": "fr",
	"deu": "de",
	"spa": "es",
	"ita": "it",
	"por": "pt",
}

// languageHints maps tesseract codes ("eng+fra") to BCP-47 hints for the
// cloud backends. Unknown codes are dropped.
func languageHints(language string) []string {
	var hints []string
	for _, code := range strings.Split(language, "+") {
		if hint, ok := bcp47[strings.TrimSpace(code)]; ok {
			hints = append(hints, hint)
		}
	}
	return hints
}
