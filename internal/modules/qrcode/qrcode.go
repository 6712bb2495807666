// Package qrcode is the built-in QR code module.
package qrcode

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	goqrcode "github.com/skip2/go-qrcode"

	"github.com/lythra/lythra/internal/atoms"
	"github.com/lythra/lythra/internal/registry"
)

const (
	Type    = "qrcode"
	Version = "1.0.0"

	DefaultSize = 256
)

// Definition describes the qrcode module type. It needs no permissions.
func Definition() registry.Definition {
	return registry.Definition{
		Type:        Type,
		Name:        "QR Code",
		Description: "Renders text or a link as a scannable QR code.",
		Version:     Version,
		Category:    "utility",
		DefaultSize: registry.Size{W: 2, H: 2},
		DefaultSettings: registry.Settings{
			"text": "",
			"size": DefaultSize,
		},
		Permissions: nil,
		SettingsSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string", MaxLength: jsonschema.Ptr(2048)},
				"size": {Type: "integer", Minimum: jsonschema.Ptr(64.0), Maximum: jsonschema.Ptr(1024.0)},
			},
		},
		Component: registry.ComponentFunc(render),
	}
}

// Atoms caches the last encoded image.
type Atoms struct {
	*atoms.BaseCells
	key   *atoms.Cell[string]
	Image *atoms.Cell[string]
}

// NewAtoms creates an empty cache.
func NewAtoms() atoms.Bundle {
	return &Atoms{
		BaseCells: atoms.NewBaseCells(),
		key:       atoms.NewCell(""),
		Image:     atoms.NewCell(""),
	}
}

// Encode returns the base64 PNG for text at size pixels.
func Encode(text string, size int) (string, error) {
	png, err := goqrcode.Encode(text, goqrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

func render(ctx context.Context, props registry.Props) (registry.View, error) {
	text := strings.TrimSpace(props.Settings.String("text", ""))
	size := props.Settings.Int("size", DefaultSize)
	if text == "" {
		return registry.View{Kind: Type, Title: "QR Code", Fields: map[string]any{"configured": false}}, nil
	}

	cache, _ := props.Atoms.(*Atoms)
	key := fmt.Sprintf("%d:%s", size, text)
	var image string
	if cache != nil && cache.key.Get() == key {
		image = cache.Image.Get()
	} else {
		encoded, err := Encode(text, size)
		if err != nil {
			if cache != nil {
				cache.Fail(err)
			}
			return registry.View{}, err
		}
		image = encoded
		if cache != nil {
			cache.key.Set(key)
			cache.Image.Set(image)
			cache.Error.Set("")
		}
	}
	return registry.View{
		Kind:        Type,
		Title:       "QR Code",
		Fields:      map[string]any{"configured": true, "text": text, "size": size},
		Body:        image,
		ContentType: "image/png",
	}, nil
}
