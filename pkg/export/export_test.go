package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		Title: "Final Report",
		Sections: []Section{
			{Title: "Verdict", Fields: []Field{{Label: "acceptance_status", Value: "Rework"}}},
		},
		Table: Dataset{
			Headers: []string{"severity", "total"},
			Rows:    []map[string]string{{"severity": "High", "total": "2"}},
		},
	}
}

func TestCSVRenderDocument(t *testing.T) {
	out, err := NewCSVExporter().RenderDocument(sampleDocument())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	assert.Equal(t, "section,field,value", lines[0])
	assert.Equal(t, "Verdict,acceptance_status,Rework", lines[1])
	assert.Equal(t, "severity,total", lines[3])
	assert.Equal(t, "High,2", lines[4])
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFRenderDocument(t *testing.T) {
	out, err := NewPDFExporter().RenderDocument(sampleDocument())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
