package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/makelocal/internal/errors"
	inHttp "github.com/Alturino/makelocal/internal/http"
	"github.com/Alturino/makelocal/internal/log"
	"github.com/Alturino/makelocal/internal/otel"
	"github.com/Alturino/makelocal/product/pkg/photo"
	"github.com/Alturino/makelocal/product/pkg/response"
)

const (
	pathSlug = "slug"
	queryURL = "url"
)

var errInvalidPhotoURL = errors.New("url must be an absolute http or https url")

type ProductCatalog interface {
	Catalog(c context.Context) (response.Catalog, error)
	ProductBySlug(c context.Context, slug string) (response.Product, error)
}

type PhotoLoader interface {
	Load(c context.Context, url string) (photo.Photo, error)
}

type ProductController struct {
	catalog    ProductCatalog
	photos     PhotoLoader
	photoHosts map[string]struct{}
}

// AttachProductController mounts the catalog routes. /photos only proxies
// hosts found in catalog image urls or listed in photoHosts.
func AttachProductController(router *mux.Router, catalog ProductCatalog, photos PhotoLoader, photoHosts []string) {
	controller := ProductController{
		catalog:    catalog,
		photos:     photos,
		photoHosts: make(map[string]struct{}, len(photoHosts)),
	}
	for _, host := range photoHosts {
		controller.photoHosts[strings.ToLower(host)] = struct{}{}
	}

	router.HandleFunc("/products", controller.ListProducts).Methods(http.MethodGet)
	router.HandleFunc("/products/{slug}", controller.FindProduct).Methods(http.MethodGet)
	router.HandleFunc("/photos", controller.Photo).Methods(http.MethodGet)
}

func (t ProductController) ListProducts(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController ListProducts")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController ListProducts").
		Str(log.KeyProcess, "loading catalog").
		Logger()

	catalog, err := t.catalog.Catalog(logger.WithContext(c))
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed loading catalog with error=%w", err))
		return
	}
	logger.Debug().Int("products", len(catalog.Products)).Msg("loaded catalog")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found products", map[string]any{
		"coordinatorId": catalog.CoordinatorID,
		"products":      catalog.Products,
		"fetchedAt":     catalog.FetchedAt,
	})
}

func (t ProductController) FindProduct(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindProduct")
	defer span.End()

	slug := mux.Vars(r)[pathSlug]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController FindProduct").
		Str(log.KeyProductSlug, slug).
		Logger()

	product, err := t.catalog.ProductBySlug(logger.WithContext(c), slug)
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed finding product with error=%w", err))
		return
	}

	inHttp.WriteSuccess(c, w, http.StatusOK, "found product", map[string]any{
		"product": product,
	})
}

// Photo streams a cached product image rather than the JSON envelope.
func (t ProductController) Photo(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController Photo")
	defer span.End()

	raw := r.URL.Query().Get(queryURL)
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController Photo").
		Str(log.KeyPhotoURL, raw).
		Logger()

	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		badRequest(c, w, span, logger, errInvalidPhotoURL)
		return
	}

	allowed, err := t.photoHostAllowed(logger.WithContext(c), parsed.Host)
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed loading catalog with error=%w", err))
		return
	}
	if !allowed {
		fail(c, w, span, logger, fmt.Errorf("failed loading photo of host=%s with error=%w", parsed.Host, inErrors.ErrPhotoHostNotAllowed))
		return
	}

	p, err := t.photos.Load(logger.WithContext(c), raw)
	if err != nil {
		fail(c, w, span, logger, fmt.Errorf("failed loading photo with error=%w", err))
		return
	}

	w.Header().Set(inHttp.HeaderContentType, p.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(p.Data); err != nil {
		inErrors.HandleError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
}

func (t ProductController) photoHostAllowed(c context.Context, host string) (bool, error) {
	host = strings.ToLower(host)
	if _, ok := t.photoHosts[host]; ok {
		return true, nil
	}
	catalog, err := t.catalog.Catalog(c)
	if err != nil {
		return false, err
	}
	for _, product := range catalog.Products {
		for _, image := range product.Images {
			if u, err := url.Parse(image); err == nil && strings.EqualFold(u.Host, host) {
				return true, nil
			}
		}
	}
	return false, nil
}
