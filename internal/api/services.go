package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/abhishinde10/healthnexus/internal/catalog"
)

func createServiceHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateServiceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		create := catalog.CreateRequest{
			Name:            req.Name,
			Category:        req.Category,
			Description:     req.Description,
			BasePrice:       req.BasePrice,
			Currency:        req.Currency,
			DurationMinutes: req.DurationMinutes,
		}
		if req.ProviderID != "" {
			create.ProviderID = uuid.MustParse(req.ProviderID)
		}

		listing, err := svc.Create(r.Context(), callerFrom(r), create)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, listing)
	}
}

func getServiceHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		listing, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	}
}

func listServicesHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := catalog.ListFilter{
			Category:   q.Get("category"),
			ActiveOnly: q.Get("include_inactive") != "true",
		}

		var ok bool
		if f.ProviderID, ok = optionalUUID(w, q.Get("provider_id"), "provider_id"); !ok {
			return
		}
		if f.Limit, f.Offset, ok = pagination(w, r); !ok {
			return
		}

		items, err := svc.List(r.Context(), f)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[catalog.Listing]{
			Items:  items,
			Count:  len(items),
			Offset: f.Offset,
		})
	}
}

func updateServiceHandler(svc CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		var req UpdateServiceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		listing, err := svc.Update(r.Context(), callerFrom(r), id, catalog.UpdateRequest{
			Name:            req.Name,
			Category:        req.Category,
			Description:     req.Description,
			BasePrice:       req.BasePrice,
			DurationMinutes: req.DurationMinutes,
			Active:          req.Active,
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listing)
	}
}

// serviceIdentifier keys single listings by id and listing pages under
// "list".
func serviceIdentifier(r *http.Request) string {
	if id := chi.URLParam(r, "id"); id != "" {
		return id
	}
	return "list"
}
