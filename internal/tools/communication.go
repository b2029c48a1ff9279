package tools

import (
	"context"

	"github.com/flowchat/gateway/internal/tool"
)

func registerCommunication(r *tool.Registry, d Deps) {
	r.Register(tool.Metadata{
		Name:        "list_recent_interactions",
		Category:    tool.CategoryRead,
		Description: "Liste interactions recentes",
		Schema: tool.Schema{
			Name:        "list_recent_interactions",
			Description: "Liste les interactions recentes (messages Telegram) pour une entreprise ou globalement. Utile pour contexte conversation.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"entreprise_id": {Type: "string", Description: "UUID de l'entreprise (optionnel, si absent retourne toutes interactions)"},
				"limit":         {Type: "integer", Description: "Nombre maximum de resultats (defaut: 20)", Default: 20},
			}),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return d.Clients.Query.RPC(ctx, "list_recent_interactions", map[string]any{
				"p_entreprise_id": p["entreprise_id"],
				"p_limit":         intParam(p, "limit", 20),
			})
		},
	})
}
