package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rosterDataset() Dataset {
	return Dataset{
		Headers: []string{"Student", "Email", "Progress"},
		Rows: []map[string]string{
			{"Student": "Ariel Mendez", "Email": "ariel@example.com", "Progress": "25%"},
			{"Student": "Kai Larsen", "Email": "kai@example.com", "Progress": "100%"},
		},
	}
}

func TestCSVRender(t *testing.T) {
	out, err := NewCSVExporter().Render(rosterDataset())

	require.NoError(t, err)
	assert.Equal(t,
		"Student,Email,Progress\n"+
			"Ariel Mendez,ariel@example.com,25%\n"+
			"Kai Larsen,kai@example.com,100%\n",
		string(out))
}

func TestCSVRenderMissingCellsStayEmpty(t *testing.T) {
	data := Dataset{
		Headers: []string{"Student", "Phone"},
		Rows:    []map[string]string{{"Student": "Ariel Mendez"}},
	}

	out, err := NewCSVExporter().Render(data)

	require.NoError(t, err)
	assert.Equal(t, "Student,Phone\nAriel Mendez,\n", string(out))
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	out, err := NewPDFExporter().Render(rosterDataset(), "Rescue Diver Roster - 2024-07-01")

	require.NoError(t, err)
	assert.True(t, len(out) > 0)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestPDFRenderRequiresHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "")
	require.Error(t, err)
}
