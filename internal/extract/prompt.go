package extract

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/tyler-sommer/stick"

	"certsheet/internal/models"
)

//go:embed templates/certificate.twig
var certificateTemplate string

var renderOnce = sync.OnceValues(func() (string, error) {
	env := stick.New(nil)

	templateCtx := map[string]stick.Value{
		"sections":      models.Sections,
		"not_specified": models.NotSpecified,
	}

	var out strings.Builder
	if err := env.Execute(certificateTemplate, &out, templateCtx); err != nil {
		return "", fmt.Errorf("failed to render certificate prompt: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
})

// Prompt returns the fixed instruction sent with every certificate image.
func Prompt() (string, error) {
	return renderOnce()
}
