package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/Alturino/makelocal/internal/api"
	"github.com/Alturino/makelocal/internal/common/constants"
	"github.com/Alturino/makelocal/internal/config"
	inErrors "github.com/Alturino/makelocal/internal/errors"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/product/pkg/catalog"
	"github.com/Alturino/makelocal/product/pkg/response"
)

// RunCatalog fetches the catalog of the configured coordinator, or of
// coordinatorID when set, and prints it to out.
func RunCatalog(c context.Context, out io.Writer, coordinatorID string, asJSON bool) error {
	c, span := otel.Tracer.Start(c, "RunCatalog")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyAppName, constants.AppCatalog).
		Str(log.KeyTag, "main RunCatalog").
		Logger()

	c = logger.WithContext(c)
	cfg := config.InitConfig(c, constants.AppMakeLocal)
	catalogConfig := cfg.Catalog
	if coordinatorID != "" {
		catalogConfig.CoordinatorID = coordinatorID
	}
	logger = logger.With().Str(log.KeyCoordinatorID, catalogConfig.CoordinatorID).Logger()

	client, err := api.NewClient(cfg.Api, nil)
	if err != nil {
		err = fmt.Errorf("failed initializing api client with error=%w", err)
		inErrors.HandleError(err, span)
		return err
	}

	logger = logger.With().Str(log.KeyProcess, "fetching catalog").Logger()
	svc := catalog.NewService(client, nil, catalogConfig)
	products, err := svc.Catalog(logger.WithContext(c))
	if err != nil {
		err = fmt.Errorf("failed fetching catalog with error=%w", err)
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Int("products", len(products.Products)).Msg("fetched catalog")

	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(products)
	}
	return PrintCatalog(out, products)
}

func PrintCatalog(out io.Writer, products response.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME\tPRICE\tTEXT\tCOLORS")
	for _, p := range products.Products {
		text := "-"
		if cfg := p.Personalization.TextInput; cfg != nil {
			text = fmt.Sprintf("%s (max %d)", cfg.Label, cfg.MaxLength)
		}
		colors := 0
		if cfg := p.Personalization.ColorSelect; cfg != nil {
			colors = len(cfg.Options)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.Slug, p.Name, p.BasePrice.StringFixed(2), text, colors)
	}
	return w.Flush()
}
