package core

import (
	"errors"
	"testing"
	"time"
)

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name:    "valid document",
			doc:     &Document{DocumentID: "aDocument"},
			wantErr: nil,
		},
		{
			name: "valid document with content elements",
			doc: &Document{
				DocumentID:      "aDocument",
				ContentElements: []ContentElement{{ID: "a"}, {ID: "b"}},
			},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "empty id",
			doc:     &Document{},
			wantErr: ErrEmptyDocumentID,
		},
		{
			name:    "id with separator",
			doc:     &Document{DocumentID: "a/b"},
			wantErr: ErrInvalidObjectName,
		},
		{
			name:    "id with version alias marker",
			doc:     &Document{DocumentID: "a@1"},
			wantErr: ErrInvalidObjectName,
		},
		{
			name: "content element without id",
			doc: &Document{
				DocumentID:      "aDocument",
				ContentElements: []ContentElement{{FileName: "x.txt"}},
			},
			wantErr: ErrInvalidDocument,
		},
		{
			name: "duplicate content element",
			doc: &Document{
				DocumentID:      "aDocument",
				ContentElements: []ContentElement{{ID: "a"}, {ID: "a"}},
			},
			wantErr: ErrInvalidDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateObjectName(t *testing.T) {
	tests := []struct {
		name    string
		object  ObjectName
		wantErr bool
	}{
		{"single segment", NewObjectName("a"), false},
		{"nested", NewObjectName("documents", "a", "1"), false},
		{"empty", ObjectName{}, true},
		{"empty segment", NewObjectName("a", "", "b"), true},
		{"nul byte", NewObjectName("a\x00b"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectName(tt.object)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateObjectName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidObjectName) {
				t.Errorf("ValidateObjectName() error = %v, want ErrInvalidObjectName", err)
			}
		})
	}

	if err := ValidatePrefix(ObjectName{}); err != nil {
		t.Errorf("ValidatePrefix() of empty prefix error = %v", err)
	}
}

func TestVersionMismatchError(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	err := error(&VersionMismatchError{DocumentID: "aDocument", Expected: &t2, Actual: &t1})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Error("errors.Is(err, ErrVersionMismatch) = false")
	}

	var vme *VersionMismatchError
	if !errors.As(err, &vme) {
		t.Fatal("errors.As() failed")
	}
	if !vme.Expected.Equal(t2) || !vme.Actual.Equal(t1) {
		t.Errorf("unexpected versions: %v", vme)
	}

	none := &VersionMismatchError{DocumentID: "x"}
	if none.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := error(&StorageError{Op: "put", Name: NewObjectName("documents", "a"), Err: cause})

	if !errors.Is(err, ErrStorage) {
		t.Error("errors.Is(err, ErrStorage) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if got := err.Error(); got != "put documents/a: disk full" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIndexMaintenanceError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&IndexMaintenanceError{Op: "update", DocumentID: "a", Err: cause})

	if !errors.Is(err, ErrIndexMaintenance) || !errors.Is(err, cause) {
		t.Error("IndexMaintenanceError does not match its sentinel and cause")
	}
}
