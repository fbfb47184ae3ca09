package asset

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/assetvault/assetvault/pkg/schema"
)

// Metadata file revisions
// =======================
//
// All four kinds share one description history, so the upgrade steps only
// rewrite each record's "description" object and pass kind-specific fields
// through untouched.
//
//   v1 (untagged bare array)
//      description: name, creator, imageSrc (absolute path), tags, createdAt
//   v2
//      imageSrc -> imageFilename (file-name component of the path)
//      adds memo, boothItemId
//   v3 (current)
//      adds dependencies, publishedAt
//      OtherAsset gains category (defaults to "")

type descriptionV1 struct {
	Name      string   `json:"name"`
	Creator   string   `json:"creator"`
	ImageSrc  string   `json:"imageSrc"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
}

type descriptionV2 struct {
	Name          string   `json:"name"`
	Creator       string   `json:"creator"`
	ImageFilename string   `json:"imageFilename,omitempty"`
	Tags          []string `json:"tags"`
	Memo          string   `json:"memo,omitempty"`
	BoothItemID   *uint64  `json:"boothItemId,omitempty"`
	CreatedAt     int64    `json:"createdAt"`
}

// NewLoader returns the metadata loader for a store of T.
func NewLoader[T Record[T]](kind Kind) *schema.Loader[[]T] {
	return schema.NewLoader[[]T](string(kind), upgradeV1ToV2, upgradeV2ToV3)
}

func upgradeV1ToV2(payload json.RawMessage) (json.RawMessage, error) {
	return rewriteDescriptions(payload, func(raw json.RawMessage) (any, error) {
		var old descriptionV1
		if err := json.Unmarshal(raw, &old); err != nil {
			return nil, err
		}

		filename, err := imageFilenameFromPath(old.ImageSrc)
		if err != nil {
			return nil, err
		}

		return descriptionV2{
			Name:          old.Name,
			Creator:       old.Creator,
			ImageFilename: filename,
			Tags:          old.Tags,
			CreatedAt:     old.CreatedAt,
		}, nil
	})
}

func upgradeV2ToV3(payload json.RawMessage) (json.RawMessage, error) {
	return rewriteDescriptions(payload, func(raw json.RawMessage) (any, error) {
		var old descriptionV2
		if err := json.Unmarshal(raw, &old); err != nil {
			return nil, err
		}

		return Description{
			Name:          old.Name,
			Creator:       old.Creator,
			ImageFilename: old.ImageFilename,
			Tags:          old.Tags,
			Memo:          old.Memo,
			BoothItemID:   old.BoothItemID,
			Dependencies:  []uuid.UUID{},
			CreatedAt:     old.CreatedAt,
		}, nil
	})
}

// rewriteDescriptions applies convert to the "description" member of every
// record in a JSON array, leaving the other members as they are.
func rewriteDescriptions(payload json.RawMessage, convert func(json.RawMessage) (any, error)) (json.RawMessage, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, err
	}

	for i, rec := range records {
		raw, ok := rec["description"]
		if !ok {
			return nil, fmt.Errorf("record %d has no description", i)
		}
		converted, err := convert(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, rec["id"], err)
		}
		encoded, err := json.Marshal(converted)
		if err != nil {
			return nil, err
		}
		rec["description"] = encoded
	}

	return json.Marshal(records)
}

// imageFilenameFromPath extracts the file-name component of a legacy image
// path. Both separators are accepted since the path may come from any
// platform. An empty path means "no image".
func imageFilenameFromPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	name := path
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		name = path[i+1:]
	}

	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("image path %q has no file name", path)
	}
	if !utf8.ValidString(name) {
		return "", errors.New("image file name is not valid UTF-8")
	}
	return name, nil
}
