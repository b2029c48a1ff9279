package tools

import (
	"context"

	"github.com/flowchat/gateway/internal/tool"
)

var qualificationStatuts = []any{"Nouveau", "Qualifié", "BC envoyé", "Payé", "Terminé", "Annulé"}

func registerQualification(r *tool.Registry, d Deps) {
	r.Register(tool.Metadata{
		Name:        "get_entreprise_qualifications",
		Category:    tool.CategoryRead,
		Description: "Recupere qualifications d'une entreprise",
		Schema: tool.Schema{
			Name:        "get_entreprise_qualifications",
			Description: "Recupere toutes les qualifications d'une entreprise specifique (date, statut, montant, description).",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"entreprise_id": {Type: "string", Description: "UUID de l'entreprise"},
			}, "entreprise_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "get_entreprise_qualifications", map[string]any{
				"p_entreprise_id": p["entreprise_id"],
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "search_qualifications",
		Category:    tool.CategoryRead,
		Description: "Recherche qualifications par criteres",
		Schema: tool.Schema{
			Name:        "search_qualifications",
			Description: "Recherche qualifications par statut, periode ou entreprise. Utile pour filtrer les qualifications actives, gagnees ou perdues.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"statut":     {Type: "string", Description: "Statut de la qualification (Nouveau, Qualifié, BC envoyé, Payé, Terminé, Annulé)", Enum: qualificationStatuts},
				"start_date": {Type: "string", Description: "Date de debut (format ISO 8601: YYYY-MM-DD)"},
				"end_date":   {Type: "string", Description: "Date de fin (format ISO 8601: YYYY-MM-DD)"},
				"limit":      {Type: "integer", Description: "Nombre maximum de resultats (defaut: 50)", Default: 50},
			}),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "search_qualifications", map[string]any{
				"p_statut":     p["statut"],
				"p_start_date": p["start_date"],
				"p_end_date":   p["end_date"],
				"p_limit":      intParam(p, "limit", 50),
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "upsert_qualification",
		Category:    tool.CategoryWrite,
		Description: "Cree ou met a jour une qualification",
		Schema: tool.Schema{
			Name:        "upsert_qualification",
			Description: "Cree ou met a jour une qualification pour une entreprise. Valide entreprise_id et statut avant insertion.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"entreprise_id":  {Type: "string", Description: "UUID de l'entreprise (requis)"},
				"statut":         {Type: "string", Description: "Statut de la qualification (requis)", Enum: qualificationStatuts},
				"montant_estime": {Type: "number", Description: "Montant estime en euros"},
				"description":    {Type: "string", Description: "Description de la qualification"},
				"date_prevue":    {Type: "string", Description: "Date previsionnelle (format ISO 8601: YYYY-MM-DD)"},
			}, "entreprise_id", "statut"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			data, err := d.Clients.Mutation.Post(ctx, "/qualification/upsert", map[string]any{
				"entreprise_id":  p["entreprise_id"],
				"statut":         p["statut"],
				"montant_estime": p["montant_estime"],
				"description":    p["description"],
				"date_prevue":    p["date_prevue"],
			})
			if err != nil {
				return nil, err
			}
			if err := requireValidated(d, "/qualification/upsert", data); err != nil {
				return nil, err
			}
			return data, nil
		},
	})
}
