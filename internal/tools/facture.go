package tools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/flowchat/gateway/internal/tool"
)

func registerFacture(r *tool.Registry, d Deps) {
	r.Register(tool.Metadata{
		Name:        "search_factures",
		Category:    tool.CategoryRead,
		Description: "Recherche factures par criteres",
		Schema: tool.Schema{
			Name:        "search_factures",
			Description: "Recherche factures par entreprise, periode ou statut de paiement. Retourne numero, montant, statut, entreprise.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"entreprise_id":  {Type: "string", Description: "UUID de l'entreprise (optionnel)"},
				"payment_status": {Type: "string", Description: "Statut de paiement (paid, unpaid, pending)", Enum: []any{"paid", "unpaid", "pending"}},
				"start_date":     {Type: "string", Description: "Date de debut (format ISO 8601: YYYY-MM-DD)"},
				"end_date":       {Type: "string", Description: "Date de fin (format ISO 8601: YYYY-MM-DD)"},
				"limit":          {Type: "integer", Description: "Nombre maximum de resultats (defaut: 50)", Default: 50},
			}),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "search_factures", map[string]any{
				"p_entreprise_id":  p["entreprise_id"],
				"p_payment_status": p["payment_status"],
				"p_start_date":     p["start_date"],
				"p_end_date":       p["end_date"],
				"p_limit":          intParam(p, "limit", 50),
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "get_facture_by_id",
		Category:    tool.CategoryRead,
		Description: "Recupere details complets d'une facture",
		Schema: tool.Schema{
			Name:        "get_facture_by_id",
			Description: "Recupere les details complets d'une facture par son ID (numero, montant, entreprise, qualification, statut paiement, PDF URL).",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"facture_id": {Type: "string", Description: "UUID de la facture"},
			}, "facture_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "get_facture_by_id", map[string]any{
				"p_id": p["facture_id"],
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "create_facture",
		Category:    tool.CategoryWrite,
		Description: "Cree une nouvelle facture",
		Schema: tool.Schema{
			Name:        "create_facture",
			Description: "Cree une nouvelle facture pour une qualification. Genere automatiquement le numero de facture. Valide qualification_id et montant.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"qualification_id": {Type: "string", Description: "UUID de la qualification (requis)"},
				"montant":          {Type: "number", Description: "Montant de la facture en euros (requis)"},
				"description":      {Type: "string", Description: "Description des services factures"},
				"date_emission":    {Type: "string", Description: "Date d'emission (format ISO 8601: YYYY-MM-DD, defaut: aujourd'hui)"},
				"date_echeance":    {Type: "string", Description: "Date d'echeance (format ISO 8601: YYYY-MM-DD)"},
			}, "qualification_id", "montant"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return createFacture(ctx, d, p)
		},
	})

	r.Register(tool.Metadata{
		Name:        "update_facture",
		Category:    tool.CategoryWrite,
		Description: "Met a jour une facture",
		Schema: tool.Schema{
			Name:        "update_facture",
			Description: "Met a jour une facture existante (montant, description, dates). Ne modifie PAS le statut de paiement (utiliser mark_facture_paid).",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"facture_id":    {Type: "string", Description: "UUID de la facture (requis)"},
				"montant":       {Type: "number", Description: "Nouveau montant en euros"},
				"description":   {Type: "string", Description: "Nouvelle description"},
				"date_echeance": {Type: "string", Description: "Nouvelle date d'echeance (format ISO 8601: YYYY-MM-DD)"},
			}, "facture_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			factureID := strParam(p, "facture_id")
			data, err := d.Clients.Mutation.Call(ctx, http.MethodPut, facturePath(factureID), map[string]any{
				"montant":       p["montant"],
				"description":   p["description"],
				"date_echeance": p["date_echeance"],
			})
			if err != nil {
				return nil, err
			}
			// An update that echoes a different id means the worker
			// touched the wrong row.
			if fmt.Sprint(data["id"]) != factureID {
				d.logger().Error("worker echoed wrong id",
					"endpoint", facturePath(factureID),
					"response", data,
				)
				return nil, tool.BusinessValidation(
					fmt.Sprintf("Validation failed: response id '%v' != '%s'", data["id"], factureID))
			}
			return validated(data), nil
		},
	})

	r.Register(tool.Metadata{
		Name:        "delete_facture",
		Category:    tool.CategoryWrite,
		Description: "Supprime une facture (soft delete)",
		Schema: tool.Schema{
			Name:        "delete_facture",
			Description: "Supprime une facture (soft delete). Ne supprime PAS definitivement, marque comme deleted=true. Requiert confirmation.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"facture_id": {Type: "string", Description: "UUID de la facture (requis)"},
			}, "facture_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Mutation.Call(ctx, http.MethodDelete,
				facturePath(strParam(p, "facture_id")), map[string]any{})
		},
	})
}

// createFacture is shared with the create_and_send_facture workflow.
// The worker's field for the amount is montant_ht.
func createFacture(ctx context.Context, d Deps, p tool.Params) (map[string]any, error) {
	data, err := d.Clients.Mutation.Post(ctx, "/facture/create", map[string]any{
		"qualification_id": p["qualification_id"],
		"montant_ht":       p["montant"],
		"description":      p["description"],
		"date_echeance":    p["date_echeance"],
	})
	if err != nil {
		return nil, err
	}
	if err := requireID(d, "/facture/create", data); err != nil {
		return nil, err
	}
	return validated(data), nil
}
