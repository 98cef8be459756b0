package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dedupfs/dfm/pkg/catalog"
)

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		rec  catalog.FileRecord
		want bool
	}{
		{
			name: "no_rules_matches",
			opts: Options{},
			rec:  catalog.FileRecord{Path: "/data/a.bin", Size: 10},
			want: true,
		},
		{
			name: "below_min_size",
			opts: Options{MinSize: 100},
			rec:  catalog.FileRecord{Path: "/data/a.bin", Size: 10},
			want: false,
		},
		{
			name: "exclude_pattern",
			opts: Options{ExcludePatterns: []string{`\.log$`}},
			rec:  catalog.FileRecord{Path: "/var/app/activity.log", Size: 10},
			want: false,
		},
		{
			name: "exclude_pattern_no_match",
			opts: Options{ExcludePatterns: []string{`\.log$`}},
			rec:  catalog.FileRecord{Path: "/var/app/data.bin", Size: 10},
			want: true,
		},
		{
			name: "expression_matches",
			opts: Options{Expression: `Size > 100 && Ext == ".iso"`},
			rec:  catalog.FileRecord{Path: "/images/disk.iso", Size: 4096},
			want: true,
		},
		{
			name: "expression_rejects",
			opts: Options{Expression: `Size > 100 && Ext == ".iso"`},
			rec:  catalog.FileRecord{Path: "/images/disk.img", Size: 4096},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.opts)
			require.NoError(t, err)

			got, err := f.Match(&tt.rec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_NilMatchesEverything(t *testing.T) {
	var f *FileFilter

	got, err := f.Match(&catalog.FileRecord{Path: "/a", Size: 1})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestNew_InvalidInput(t *testing.T) {
	_, err := New(Options{ExcludePatterns: []string{`(`}})
	assert.Error(t, err)

	_, err = New(Options{Expression: `Size +`})
	assert.Error(t, err)

	_, err = New(Options{Expression: `Size + 1`}) // not a bool
	assert.Error(t, err)
}
