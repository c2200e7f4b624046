package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventType_Classification(t *testing.T) {
	content := []EventType{EventUpload, EventCreate, EventEdit, EventUndelete, EventCopy, EventRename, EventMove}
	for _, e := range content {
		assert.True(t, e.AffectsContent(), e)
		assert.False(t, e.IsDeletion(), e)
	}

	for _, e := range []EventType{EventTrash, EventDelete} {
		assert.True(t, e.IsDeletion(), e)
		assert.False(t, e.AffectsContent(), e)
	}

	assert.False(t, EventUnknown.AffectsContent())
	assert.False(t, EventUnknown.IsDeletion())
}

func TestActionRecord_Validate(t *testing.T) {
	base := ActionRecord{AccountID: "a", SourceID: "s", SourcePath: "docs/a.txt"}

	tests := []struct {
		name       string
		action     Action
		sourceType SourceType
		wantErr    bool
	}{
		{"download file", ActionDownload, SourceTypeFile, false},
		{"download folder", ActionDownload, SourceTypeFolder, true},
		{"mkdir folder", ActionMakeDirectory, SourceTypeFolder, false},
		{"mkdir file", ActionMakeDirectory, SourceTypeFile, true},
		{"delete file", ActionDelete, SourceTypeFile, false},
		{"delete folder", ActionDelete, SourceTypeFolder, false},
		{"delete untyped", ActionDelete, "", true},
		{"unknown action", Action("rename"), SourceTypeFile, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := base
			rec.Action = tt.action
			rec.SourceType = tt.sourceType
			err := rec.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidInput))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionRecord_ValidateRequiresPath(t *testing.T) {
	rec := ActionRecord{AccountID: "a", SourceID: "s", Action: ActionDelete, SourceType: SourceTypeFile}
	assert.ErrorIs(t, rec.Validate(), ErrInvalidInput)
}
