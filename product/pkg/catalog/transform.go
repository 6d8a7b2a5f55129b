package catalog

import (
	"strings"

	"github.com/Alturino/makelocal/order/pkg/request"
	"github.com/Alturino/makelocal/product/pkg/response"
)

const (
	ParameterTypeColor = "color"
	ParameterTypeText  = "text"

	DefaultTextMaxLength      = 50
	DefaultEstimatedPrintTime = "20 min"
	DefaultMaterial           = "PLA"
	defaultColorLabel         = "Choose Color"
	fallbackHex               = "#6b7280"
)

var DefaultColors = []string{
	"Black", "White", "Gray", "Red", "Blue",
	"Green", "Yellow", "Orange", "Purple", "Pink",
}

var namedColors = map[string]string{
	"red":    "#ef4444",
	"blue":   "#3b82f6",
	"green":  "#10b981",
	"yellow": "#f59e0b",
	"black":  "#1f2937",
	"white":  "#ffffff",
	"gray":   "#6b7280",
	"grey":   "#6b7280",
	"purple": "#a855f7",
	"pink":   "#ec4899",
	"orange": "#f97316",
}

// NormalizeHexColor keeps hex codes and maps known color names, falling back
// to gray.
func NormalizeHexColor(color string) string {
	if strings.HasPrefix(color, "#") {
		return color
	}
	if hex, ok := namedColors[strings.ToLower(color)]; ok {
		return hex
	}
	return fallbackHex
}

func TransformColorParameter(param request.ProductParameter) *response.ColorSelectConfig {
	if param.Type != ParameterTypeColor {
		return nil
	}
	names := param.Options
	if len(names) == 0 {
		names = DefaultColors
	}
	available := true
	options := make([]response.ColorOption, 0, len(names))
	for _, name := range names {
		options = append(options, response.ColorOption{
			ID:        strings.ToLower(name),
			Name:      name,
			Hex:       NormalizeHexColor(name),
			Available: &available,
		})
	}
	label := param.Description
	if label == "" {
		label = defaultColorLabel
	}
	return &response.ColorSelectConfig{
		Label:    label,
		Required: param.IsRequired,
		Options:  options,
	}
}

func TransformTextParameter(param request.ProductParameter) *response.TextInputConfig {
	if param.Type != ParameterTypeText {
		return nil
	}
	label := param.Description
	if label == "" {
		label = param.Name
	}
	return &response.TextInputConfig{
		Label:       label,
		Placeholder: param.Placeholder,
		Required:    param.IsRequired,
		MinLength:   0,
		MaxLength:   DefaultTextMaxLength,
	}
}

// TransformPersonalization uses the first color and the first text parameter.
func TransformPersonalization(params []request.ProductParameter) response.Personalization {
	var personalization response.Personalization
	for _, param := range params {
		switch {
		case param.Type == ParameterTypeColor && personalization.ColorSelect == nil:
			personalization.ColorSelect = TransformColorParameter(param)
		case param.Type == ParameterTypeText && personalization.TextInput == nil:
			personalization.TextInput = TransformTextParameter(param)
		}
	}
	return personalization
}

func TransformProduct(p response.CoordinatorProduct) response.Product {
	slug := p.Slug
	if slug == "" {
		slug = p.ID
	}
	images := make([]string, 0, len(p.Photos)+1)
	if p.FeaturedImage != "" {
		images = append(images, p.FeaturedImage)
	}
	for _, photo := range p.Photos {
		if photo != "" {
			images = append(images, photo)
		}
	}
	return response.Product{
		ID:                 p.ID,
		Slug:               slug,
		Name:               p.Title,
		Description:        p.Description,
		BasePrice:          p.Price,
		EstimatedPrintTime: DefaultEstimatedPrintTime,
		Material:           DefaultMaterial,
		Images:             images,
		Personalization:    TransformPersonalization(p.ChangeableParameters),
	}
}
