package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/vsm/internal/logging"
	"github.com/rendis/vsm/pkg/schema"
)

// Icon is one entry of the user-curated custom symbol library. Nodes refer
// to it through their iconId attribute; the library is not part of the graph.
type Icon struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	ImageData string    `json:"imageData"`
	CreatedAt time.Time `json:"createdAt"`
}

// Icons returns the stored icon library. Missing or corrupt state reads as
// an empty library.
func (g *Gate) Icons(ctx context.Context) []Icon {
	ctx = logging.WithDiagramID(ctx, g.iconsKey)

	doc, err := g.store.GetDocument(ctx, g.iconsKey)
	if err != nil {
		if !schema.HasCode(err, schema.ErrCodeNotFound) {
			g.logger.WarnContext(ctx, "icon library read failed", slog.String("error", err.Error()))
		}
		return []Icon{}
	}

	var icons []Icon
	if err := json.Unmarshal(doc.Body, &icons); err != nil {
		g.logger.WarnContext(ctx, "icon library discarded", slog.String("error", err.Error()))
		return []Icon{}
	}
	if icons == nil {
		icons = []Icon{}
	}
	return icons
}

// SaveIcons replaces the whole icon library.
func (g *Gate) SaveIcons(ctx context.Context, icons []Icon) error {
	if icons == nil {
		icons = []Icon{}
	}
	body, err := json.Marshal(icons)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "encode icon library").WithCause(err)
	}
	if _, err := g.store.PutDocument(ctx, g.iconsKey, body); err != nil {
		return schema.NewError(schema.ErrCodeStore, "save icon library").WithCause(err)
	}
	return nil
}

// AddIcon appends icon to the library, assigning an id and timestamp when
// missing. An icon with an existing id replaces the stored one.
func (g *Gate) AddIcon(ctx context.Context, icon Icon) (Icon, error) {
	if strings.TrimSpace(icon.ImageData) == "" {
		return Icon{}, schema.NewError(schema.ErrCodeValidation, "icon image data is required")
	}
	if icon.ID == "" {
		icon.ID = "icon-" + uuid.NewString()
	}
	if icon.CreatedAt.IsZero() {
		icon.CreatedAt = time.Now().UTC()
	}
	if icon.Name == "" {
		icon.Name = icon.ID
	}

	icons := g.Icons(ctx)
	replaced := false
	for i := range icons {
		if icons[i].ID == icon.ID {
			icons[i] = icon
			replaced = true
			break
		}
	}
	if !replaced {
		icons = append(icons, icon)
	}
	if err := g.SaveIcons(ctx, icons); err != nil {
		return Icon{}, err
	}
	return icon, nil
}

// RemoveIcon deletes the icon with id. It reports whether an icon was removed.
func (g *Gate) RemoveIcon(ctx context.Context, id string) (bool, error) {
	icons := g.Icons(ctx)
	kept := icons[:0]
	for _, ic := range icons {
		if ic.ID != id {
			kept = append(kept, ic)
		}
	}
	if len(kept) == len(icons) {
		return false, nil
	}
	return true, g.SaveIcons(ctx, kept)
}
