package symbols

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testMap = `
Memory Configuration

Linker script and memory map

..code          0x80010060    0xd4ea0 load address 0x00001060
 .text          0x80010060      0x7c0 build/src/code/main.o
                0x80010060                main
                0x80010220                Main_ThreadEntry
                0x800104a0                PreNMI_Stop = .

..ovl_Bg_Hidan_Kousi
                0x80800000      0x6f0 load address 0x00e3c000
 .text          0x80800000      0x5a0 build/src/overlays/actors/ovl_Bg_Hidan_Kousi/z_bg_hidan_kousi.o
                0x80800000                BgHidanKousi_Init
                0x80800040                BgHidanKousi_Update
                0x80800100                Shared_Func

..ovl_En_Test   0x80810000     0x1000 load address 0x00e40000
 .text          0x80810000      0x800 build/src/overlays/actors/ovl_En_Test/z_en_test.o
                0x80810024                EnTest_Draw
                0x80810100                Shared_Func
`

func TestLookup(t *testing.T) {
	tbl, err := Parse(strings.NewReader(testMap))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		want Symbol
	}{
		{"Main_ThreadEntry", Symbol{Name: "Main_ThreadEntry", Addr: 0x80010220}},
		{"BgHidanKousi_Update", Symbol{Name: "BgHidanKousi_Update", Overlay: "bg_hidan_kousi", Offset: 0x40}},
		{"EnTest_Draw", Symbol{Name: "EnTest_Draw", Overlay: "en_test", Offset: 0x24}},
	}
	for _, tc := range tests {
		got, err := tbl.Lookup(tc.name)
		if err != nil {
			t.Errorf("Lookup(%s): %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Lookup(%s) = %+v want %+v", tc.name, got, tc.want)
		}
	}
}

func TestLookupErrors(t *testing.T) {
	tbl, err := Parse(strings.NewReader(testMap))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Lookup("Nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	// assignments are not functions
	if _, err := tbl.Lookup("PreNMI_Stop"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an assignment, got %v", err)
	}
	_, err = tbl.Lookup("Shared_Func")
	var amb *AmbiguousError
	if !errors.As(err, &amb) || len(amb.Candidates) != 2 {
		t.Errorf("expected AmbiguousError with 2 candidates, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "z64.map")
	if err := os.WriteFile(path, []byte(testMap), 0o600); err != nil {
		t.Fatal(err)
	}
	tbl, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if names := tbl.Names("BgHidan"); len(names) != 2 {
		t.Errorf("Names(BgHidan) = %v", names)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.map")); err == nil {
		t.Error("loading a missing file succeeded")
	}
}
