package tools

import (
	"context"
	"net/http"

	"github.com/flowchat/gateway/internal/tool"
)

func registerPaiement(r *tool.Registry, d Deps) {
	r.Register(tool.Metadata{
		Name:        "get_unpaid_factures",
		Category:    tool.CategoryRead,
		Description: "Recupere factures impayees",
		Schema: tool.Schema{
			Name:        "get_unpaid_factures",
			Description: "Recupere toutes les factures impayees. Utile pour relances et suivi de paiements.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"limit": {Type: "integer", Description: "Nombre maximum de resultats (defaut: 100)", Default: 100},
			}),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "get_unpaid_factures", map[string]any{
				"p_limit": intParam(p, "limit", 100),
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "get_revenue_stats",
		Category:    tool.CategoryRead,
		Description: "Calcule statistiques revenus pour periode",
		Schema: tool.Schema{
			Name:        "get_revenue_stats",
			Description: "Calcule statistiques de revenus pour une periode (CA total, nombre factures, montant moyen, taux paiement).",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"start_date": {Type: "string", Description: "Date de debut (format ISO 8601: YYYY-MM-DD)"},
				"end_date":   {Type: "string", Description: "Date de fin (format ISO 8601: YYYY-MM-DD)"},
			}, "start_date", "end_date"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "get_revenue_stats", map[string]any{
				"p_start_date": p["start_date"],
				"p_end_date":   p["end_date"],
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "mark_facture_paid",
		Category:    tool.CategoryWrite,
		Description: "Marque une facture comme payee",
		Schema: tool.Schema{
			Name:        "mark_facture_paid",
			Description: "Marque une facture comme payee. Met a jour payment_status='paid' et enregistre la date de paiement.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"facture_id":     {Type: "string", Description: "UUID de la facture (requis)"},
				"payment_date":   {Type: "string", Description: "Date de paiement (format ISO 8601: YYYY-MM-DD, defaut: aujourd'hui)"},
				"payment_method": {Type: "string", Description: "Methode de paiement (virement, cheque, carte, especes)"},
			}, "facture_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			path := facturePath(strParam(p, "facture_id"))
			data, err := d.Clients.Mutation.Call(ctx, http.MethodPut, path, map[string]any{
				"payment_status": "paid",
				"payment_date":   p["payment_date"],
				"payment_method": p["payment_method"],
			})
			if err != nil {
				return nil, err
			}
			if err := requireValidated(d, path, data); err != nil {
				return nil, err
			}
			return data, nil
		},
	})
}
