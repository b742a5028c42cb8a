package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVersionFromFile(t *testing.T) {
	tests := []struct {
		file    string
		want    int64
		wantErr bool
	}{
		{"001_identities.up.sql", 1, false},
		{"002_profiles.up.sql", 2, false},
		{"nounderscore.sql", 0, true},
		{"abc_x.up.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := versionFromFile(tt.file)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.file, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.file, got, tt.want)
		}
	}
}

func TestUpMigrations_SkipsDownFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_profiles.up.sql", "001_identities.up.sql", "001_identities.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	files, err := upMigrations(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0] != "001_identities.up.sql" || files[1] != "002_profiles.up.sql" {
		t.Errorf("unexpected files: %v", files)
	}
}
