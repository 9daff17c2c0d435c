package publisher

import (
	"fmt"

	"howett.net/plist"
)

type manifest struct {
	Items []manifestItem `plist:"items"`
}

type manifestItem struct {
	Assets   []manifestAsset  `plist:"assets"`
	Metadata manifestMetadata `plist:"metadata"`
}

type manifestAsset struct {
	Kind string `plist:"kind"`
	URL  string `plist:"url"`
}

type manifestMetadata struct {
	BundleIdentifier string `plist:"bundle-identifier"`
	BundleVersion    string `plist:"bundle-version"`
	Kind             string `plist:"kind"`
	Title            string `plist:"title"`
}

// Manifest describes one installable package.
type Manifest struct {
	PackageURL string
	IconURL    string
	BundleID   string
	Version    string
	Title      string
}

// Encode renders the over-the-air install manifest as an XML property list.
func (m Manifest) Encode() ([]byte, error) {
	doc := manifest{
		Items: []manifestItem{{
			Assets: []manifestAsset{
				{Kind: "software-package", URL: m.PackageURL},
				{Kind: "full-size-image", URL: m.IconURL},
				{Kind: "display-image", URL: m.IconURL},
			},
			Metadata: manifestMetadata{
				BundleIdentifier: m.BundleID,
				BundleVersion:    m.Version,
				Kind:             "software",
				Title:            m.Title,
			},
		}},
	}

	data, err := plist.MarshalIndent(doc, plist.XMLFormat, "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest parses a manifest produced by Encode.
func DecodeManifest(data []byte) (Manifest, error) {
	var doc manifest
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest: %w", err)
	}
	if len(doc.Items) == 0 {
		return Manifest{}, fmt.Errorf("manifest has no items")
	}

	item := doc.Items[0]
	m := Manifest{
		BundleID: item.Metadata.BundleIdentifier,
		Version:  item.Metadata.BundleVersion,
		Title:    item.Metadata.Title,
	}
	for _, a := range item.Assets {
		switch a.Kind {
		case "software-package":
			m.PackageURL = a.URL
		case "display-image":
			m.IconURL = a.URL
		}
	}

	return m, nil
}
