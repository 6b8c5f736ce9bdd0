package wal

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

type entry struct {
	Seq  int    `json:"seq"`
	Note string `json:"note"`
}

// 寫入後重開檔案，ReadAll 依序重放所有資料
func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := NewWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := w.Append(entry{Seq: i, Note: "n"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	w2, err := NewWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()

	var got []entry
	err = w2.ReadAll(func(jsonRaw []byte) error {
		var e entry
		if err := json.Unmarshal(jsonRaw, &e); err != nil {
			return err
		}
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i, e := range got {
		if e.Seq != i {
			t.Fatalf("entry %d seq = %d", i, e.Seq)
		}
	}
}

// 空檔案重放不報錯
func TestReadAllEmpty(t *testing.T) {
	w, err := NewWAL(filepath.Join(t.TempDir(), "wal.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	err = w.ReadAll(func([]byte) error {
		t.Fatal("unexpected entry")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
