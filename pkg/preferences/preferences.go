// Package preferences persists the application preferences document.
//
// The document uses the same versioned envelope as asset metadata:
//
//	v1 (untagged object)
//	   dataDirPath, theme, deleteOnImport, showUnitypackageDialog
//	v2
//	   adds language (defaults to "ja-JP")
//	   showUnitypackageDialog becomes skipUnitypackageDialog (inverted)
//	v3 (current)
//	   adds usePrerelease; documents migrated from v1 or v2 get true
package preferences

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/assetvault/assetvault/pkg/schema"
)

const (
	// DefaultLanguage is assigned to documents that predate the language
	// setting and to fresh installs.
	DefaultLanguage = "ja-JP"

	FileName = "preferences.json"
)

// Theme selects the GUI color scheme.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Preferences is the current revision of the document.
type Preferences struct {
	DataDirPath            string `json:"dataDirPath" validate:"required"`
	Theme                  Theme  `json:"theme" validate:"oneof=light dark system"`
	Language               string `json:"language" validate:"required"`
	DeleteOnImport         bool   `json:"deleteOnImport"`
	SkipUnitypackageDialog bool   `json:"skipUnitypackageDialog"`
	UsePrerelease          bool   `json:"usePrerelease"`
}

// Default returns the preferences of a fresh install.
func Default(dataDir string) Preferences {
	return Preferences{
		DataDirPath: dataDir,
		Theme:       ThemeSystem,
		Language:    DefaultLanguage,
	}
}

// Validate checks field constraints.
func (p Preferences) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

var loader = schema.NewLoader[Preferences]("preferences", upgradeV1ToV2, upgradeV2ToV3)

// Load reads the document at path. A missing file yields Default(dataDir).
// The returned version is the revision found on disk (0 when absent).
func Load(path, dataDir string) (Preferences, int, error) {
	prefs, version, found, err := loader.ReadFile(path)
	if err != nil {
		return Preferences{}, version, err
	}
	if !found {
		return Default(dataDir), 0, nil
	}
	return prefs, version, nil
}

// Save writes p as the current revision.
func Save(path string, p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return loader.WriteFile(path, p)
}

// Decode parses a document of any revision.
func Decode(raw []byte) (Preferences, int, error) {
	return loader.Decode(raw)
}

// ============================================================================
// Revisions
// ============================================================================

type preferencesV1 struct {
	DataDirPath            string `json:"dataDirPath"`
	Theme                  Theme  `json:"theme"`
	DeleteOnImport         bool   `json:"deleteOnImport"`
	ShowUnitypackageDialog bool   `json:"showUnitypackageDialog"`
}

type preferencesV2 struct {
	DataDirPath            string `json:"dataDirPath"`
	Theme                  Theme  `json:"theme"`
	Language               string `json:"language"`
	DeleteOnImport         bool   `json:"deleteOnImport"`
	SkipUnitypackageDialog bool   `json:"skipUnitypackageDialog"`
}

func upgradeV1ToV2(payload json.RawMessage) (json.RawMessage, error) {
	var old preferencesV1
	if err := json.Unmarshal(payload, &old); err != nil {
		return nil, err
	}
	return json.Marshal(preferencesV2{
		DataDirPath:            old.DataDirPath,
		Theme:                  old.Theme,
		Language:               DefaultLanguage,
		DeleteOnImport:         old.DeleteOnImport,
		SkipUnitypackageDialog: !old.ShowUnitypackageDialog,
	})
}

func upgradeV2ToV3(payload json.RawMessage) (json.RawMessage, error) {
	var old preferencesV2
	if err := json.Unmarshal(payload, &old); err != nil {
		return nil, err
	}
	language := old.Language
	if language == "" {
		language = DefaultLanguage
	}
	return json.Marshal(Preferences{
		DataDirPath:            old.DataDirPath,
		Theme:                  old.Theme,
		Language:               language,
		DeleteOnImport:         old.DeleteOnImport,
		SkipUnitypackageDialog: old.SkipUnitypackageDialog,
		UsePrerelease:          true,
	})
}
