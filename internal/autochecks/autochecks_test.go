package autochecks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"checkengine/internal/domain"
	"checkengine/internal/params"
)

func TestSaveLoadAndToServices(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "autochecks"))
	missing, err := store.Load("web01")
	require.NoError(t, err)
	require.Nil(t, missing)

	entries := []Entry{
		{CheckPluginName: "uptime"},
		{
			CheckPluginName: "df",
			Item:            "/var",
			Parameters: map[string]any{
				"levels": []any{80.0, 90.0},
				"trend":  []any{params.MarkerTag, "host_name", nil},
			},
			ServiceLabels: map[string]string{"fs": "ext4"},
		},
	}
	require.NoError(t, store.Save("web01", entries))

	loaded, err := store.Load("web01")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "df", loaded[0].CheckPluginName)

	tree := params.MapFromAny(loaded[0].Parameters)
	require.True(t, params.NeedsPostprocessing(tree))

	services := ToServices(loaded, func(name domain.CheckPluginName, item string) (domain.ServiceName, bool) {
		if name == "df" {
			return domain.ServiceName("Filesystem " + item), true
		}
		return "", false
	})
	require.Equal(t, domain.ServiceName("Filesystem /var"), services[0].Description)
	require.Equal(t, domain.OriginDiscovered, services[0].Origin)
	require.Equal(t, domain.ServiceName("uptime"), services[1].Description)
}

func TestSaveWithoutDir(t *testing.T) {
	t.Parallel()

	require.Error(t, NewStore("").Save("web01", nil))
}
