package profile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamancini/launchkit/internal/wire"
)

const sampleYAML = `
title: Vanilla
version: "1.20.4"
sortIndex: 1
serverAddress: play.example.net
serverPort: 25565
dir: vanilla
assetDir: assets
update: ["libraries", "client.jar"]
verify: ["natives/**"]
exclusions: ["config"]
command: java
args: ["-Xmx2G"]
`

func TestParseYAML(t *testing.T) {
	p, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "Vanilla", p.Title)
	assert.Equal(t, "1.20.4", p.Version)
	assert.Equal(t, "play.example.net:25565", p.Address())
	assert.Equal(t, []string{"-Xmx2G"}, p.Args)

	m, err := p.Matcher()
	require.NoError(t, err)
	assert.True(t, m.Matches("libraries/a.jar"))
	assert.True(t, m.Matches("natives/linux/lib.so"))
	assert.False(t, m.Matches("config/options.txt"))
	assert.False(t, m.Matches("saves/world"))
}

func TestParseJSON(t *testing.T) {
	doc := `{"title": "Modded", "version": "2", "dir": "modded", "command": "java"}`
	p, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "Modded", p.Title)
	assert.Equal(t, "", p.Address())
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing title", `{"version": "1", "dir": "x"}`},
		{"unsafe dir", `{"title": "a", "version": "1", "dir": "../x"}`},
		{"bad port", `{"title": "a", "version": "1", "dir": "x", "serverPort": 70000}`},
		{"bad pattern", `{"title": "a", "version": "1", "dir": "x", "update": ["[oops"]}`},
		{"unknown field", `{"title": "a", "version": "1", "dir": "x", "jvmArgs": []}`},
		{"not a document", `:::`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	orig, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	require.NoError(t, Encode(w, orig))
	require.NoError(t, w.Flush())

	got, err := Decode(wire.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestSortProfiles(t *testing.T) {
	profiles := []*ClientProfile{
		{Title: "b", SortIndex: 2},
		{Title: "z", SortIndex: 1},
		{Title: "a", SortIndex: 2},
	}
	SortProfiles(profiles)

	var titles []string
	for _, p := range profiles {
		titles = append(titles, p.Title)
	}
	assert.Equal(t, []string{"z", "a", "b"}, titles)
}
