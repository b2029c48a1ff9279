package tools

import (
	"context"

	"github.com/flowchat/gateway/internal/tool"
)

func registerEntreprise(r *tool.Registry, d Deps) {
	r.Register(tool.Metadata{
		Name:        "search_entreprise_with_stats",
		Category:    tool.CategoryRead,
		Description: "Recherche entreprise par nom avec statistiques",
		Schema: tool.Schema{
			Name:        "search_entreprise_with_stats",
			Description: "Recherche entreprise par nom avec statistiques (CA, derniere qualification). Retourne nom, email, CA total, nombre de qualifications.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"search_term": {Type: "string", Description: "Nom ou partie du nom de l'entreprise a rechercher"},
				"limit":       {Type: "integer", Description: "Nombre maximum de resultats (defaut: 10)", Default: 10},
			}, "search_term"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "search_entreprise_with_stats", map[string]any{
				"p_search_term": p["search_term"],
				"p_limit":       intParam(p, "limit", 10),
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "get_entreprise_by_id",
		Category:    tool.CategoryRead,
		Description: "Recupere details complets d'une entreprise",
		Schema: tool.Schema{
			Name:        "get_entreprise_by_id",
			Description: "Recupere les details complets d'une entreprise par son ID (nom, email, telephone, adresse, CA total, stats qualifications).",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"entreprise_id": {Type: "string", Description: "UUID de l'entreprise"},
			}, "entreprise_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "get_entreprise_by_id", map[string]any{
				"p_id": p["entreprise_id"],
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "list_entreprises",
		Category:    tool.CategoryRead,
		Description: "Liste toutes les entreprises avec pagination",
		Schema: tool.Schema{
			Name:        "list_entreprises",
			Description: "Liste toutes les entreprises avec pagination. Retourne nom, email, CA total pour chaque entreprise.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"limit":  {Type: "integer", Description: "Nombre maximum de resultats (defaut: 50)", Default: 50},
				"offset": {Type: "integer", Description: "Decalage pour pagination (defaut: 0)", Default: 0},
			}),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "list_entreprises", map[string]any{
				"p_limit":  intParam(p, "limit", 50),
				"p_offset": intParam(p, "offset", 0),
			})
		},
	})

	r.Register(tool.Metadata{
		Name:        "get_stats_entreprises",
		Category:    tool.CategoryRead,
		Description: "Statistiques globales sur les entreprises et revenus",
		Schema: tool.Schema{
			Name:        "get_stats_entreprises",
			Description: "Recupere les statistiques globales sur toutes les entreprises (nombre total, revenus totaux des encarts). Utile pour obtenir une vue d'ensemble du CRM.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{}),
		},
		Handler: func(ctx context.Context, _ tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "get_stats_entreprises", nil)
		},
	})

	r.Register(tool.Metadata{
		Name:        "upsert_entreprise",
		Category:    tool.CategoryWrite,
		Description: "Cree ou met a jour une entreprise",
		Schema: tool.Schema{
			Name:        "upsert_entreprise",
			Description: "Cree ou met a jour une entreprise. Si nom existe, met a jour. Sinon cree nouvelle entreprise. Valide les donnees avant insertion.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"nom":       {Type: "string", Description: "Nom de l'entreprise (requis)"},
				"email":     {Type: "string", Description: "Email de contact"},
				"telephone": {Type: "string", Description: "Numero de telephone"},
				"adresse":   {Type: "string", Description: "Adresse complete"},
				"notes":     {Type: "string", Description: "Notes internes"},
			}, "nom"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			data, err := d.Clients.Mutation.Post(ctx, "/entreprise/upsert", map[string]any{
				"nom":       p["nom"],
				"email":     p["email"],
				"telephone": p["telephone"],
				"adresse":   p["adresse"],
				"notes":     p["notes"],
			})
			if err != nil {
				return nil, err
			}
			if err := requireID(d, "/entreprise/upsert", data); err != nil {
				return nil, err
			}
			return validated(data), nil
		},
	})
}
