package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flowchat/gateway/internal/hitl"
	"github.com/flowchat/gateway/internal/tool"
)

// Workflows orchestrate several downstream services per call. They
// import the domain handlers, never the other way around. Every
// document/storage leg uses the base64 contract: the document service
// returns pdf_base64 and storage accepts /upload/base64.
func registerWorkflow(r *tool.Registry, d Deps) {
	r.Register(tool.Metadata{
		Name:        "generate_facture_pdf",
		Category:    tool.CategoryWorkflow,
		Description: "Genere PDF facture et upload (sans email)",
		Schema: tool.Schema{
			Name:        "generate_facture_pdf",
			Description: "Genere le PDF d'une facture existante et l'upload sur le storage. Retourne l'URL du PDF. N'envoie PAS d'email.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"facture_id":       {Type: "string", Description: "UUID de la facture (requis)"},
				"force_regenerate": {Type: "boolean", Description: "Forcer la regeneration meme si PDF existe deja (defaut: false)", Default: false},
			}, "facture_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return generateFacturePDF(ctx, d, p)
		},
	})

	r.Register(tool.Metadata{
		Name:        "create_and_send_facture",
		Category:    tool.CategoryWorkflow,
		Description: "Cree facture puis genere et envoie PDF",
		Schema: tool.Schema{
			Name:        "create_and_send_facture",
			Description: "Workflow complet : Cree facture -> (optionnel: marque payee) -> Genere PDF -> Upload -> Envoie email. Simplifie creation + envoi en une seule operation.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"qualification_id": {Type: "string", Description: "UUID de la qualification (requis)"},
				"montant":          {Type: "number", Description: "Montant de la facture en euros (requis)"},
				"mark_as_paid":     {Type: "boolean", Description: "Marquer la facture comme payee avant de generer le PDF (defaut: false). Genere alors template facture acquittee.", Default: false},
				"description":      {Type: "string", Description: "Description des services factures"},
				"recipient_email":  {Type: "string", Description: "Email du destinataire (optionnel, utilise email entreprise si absent)"},
				"date_echeance":    {Type: "string", Description: "Date d'echeance (format ISO 8601: YYYY-MM-DD)"},
				"message":          {Type: "string", Description: "Message personnalise dans l'email (optionnel)"},
			}, "qualification_id", "montant"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return createAndSendFacture(ctx, d, p)
		},
	})

	r.Register(tool.Metadata{
		Name:        "send_facture_email",
		Category:    tool.CategoryWorkflow,
		Description: "Genere PDF facture, upload et envoie email",
		Schema: tool.Schema{
			Name:        "send_facture_email",
			Description: "Workflow complet : Genere PDF de facture -> Upload -> Envoie email au client. Retourne URL du PDF et statut d'envoi.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"facture_id":      {Type: "string", Description: "UUID de la facture a envoyer (requis)"},
				"recipient_email": {Type: "string", Description: "Email du destinataire (optionnel, utilise email entreprise si absent)"},
				"message":         {Type: "string", Description: "Message personnalise a inclure dans l'email (optionnel)"},
			}, "facture_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return sendFactureEmail(ctx, d, p)
		},
	})

	r.Register(tool.Metadata{
		Name:        "generate_monthly_report",
		Category:    tool.CategoryWorkflow,
		Description: "Genere rapport mensuel PDF avec stats",
		Schema: tool.Schema{
			Name:        "generate_monthly_report",
			Description: "Genere rapport mensuel : Fetch stats revenus + factures impayees -> Genere PDF -> Upload. Retourne URL du rapport PDF.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"year":            {Type: "integer", Description: "Annee du rapport (ex: 2025)"},
				"month":           {Type: "integer", Description: "Mois du rapport (1-12)"},
				"send_email":      {Type: "boolean", Description: "Envoyer le rapport par email apres generation (defaut: false)", Default: false},
				"recipient_email": {Type: "string", Description: "Email destinataire si send_email=true"},
			}, "year", "month"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return generateMonthlyReport(ctx, d, p)
		},
	})

	r.Register(tool.Metadata{
		Name:        "send_plaquette_to_entreprise",
		Category:    tool.CategoryWorkflow,
		Description: "Genere et envoie la plaquette 2027 a une entreprise",
		Schema: tool.Schema{
			Name: "send_plaquette_to_entreprise",
			Description: "Workflow complet : Recupere les infos d'une entreprise -> " +
				"Genere la plaquette commerciale 2027 personnalisee (PDF) -> " +
				"Upload sur storage -> Envoie par email. " +
				"Adapte automatiquement le message selon l'historique client (nouveau / renouvellement). " +
				"Utilise ce tool si le webhook automatique a echoue (email manquant, erreur) ou pour un envoi manuel.",
			InputSchema: tool.ObjectSchema(map[string]tool.Property{
				"entreprise_id":         {Type: "string", Description: "UUID de l'entreprise destinataire (requis)"},
				"recipient_email":       {Type: "string", Description: "Email de remplacement si l'entreprise n'en a pas en base"},
				"prospecteur_nom":       {Type: "string", Description: "Nom du prospecteur a afficher dans la plaquette (optionnel)"},
				"prospecteur_telephone": {Type: "string", Description: "Telephone du prospecteur (optionnel)"},
				"prospecteur_email":     {Type: "string", Description: "Email du prospecteur (optionnel)"},
				"message":               {Type: "string", Description: "Message personnalise dans l'email d'accompagnement (optionnel)"},
			}, "entreprise_id"),
		},
		Handler: func(ctx context.Context, p tool.Params) (any, error) {
			return sendPlaquette(ctx, d, p)
		},
	})
}

func rowStr(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// uploadBase64 pushes a base64 PDF to the storage service and returns
// its URL, whichever of the known URL fields the service filled in.
func uploadBase64(ctx context.Context, d Deps, bucket, filename, path, content string) (string, error) {
	out, err := d.Clients.Storage.Post(ctx, "/upload/base64", map[string]any{
		"bucket":       bucket,
		"filename":     filename,
		"content":      content,
		"content_type": "application/pdf",
		"path":         path,
		"upsert":       "true",
		"request_id":   reqID(ctx),
	})
	if err != nil {
		return "", err
	}
	for _, k := range []string{"public_url", "url", "signed_url"} {
		if u := rowStr(out, k); u != "" {
			return u, nil
		}
	}
	return "", errors.New("tools: PDF uploaded but no URL returned from storage service")
}

func generateFacturePDF(ctx context.Context, d Deps, p tool.Params) (any, error) {
	factureID := strParam(p, "facture_id")
	force := boolParam(p, "force_regenerate")

	d.logger().Info("workflow generate_facture_pdf started", "facture_id", factureID, "force", force)

	out, err := d.Clients.Query.RPC(ctx, "get_facture_by_id", map[string]any{"p_id": factureID})
	if err != nil {
		return nil, err
	}
	facture := firstRow(out)
	if facture == nil {
		return nil, tool.NotFound(fmt.Sprintf("Facture %s not found", factureID))
	}

	paymentStatus := rowStr(facture, "payment_status")
	if paymentStatus == "" {
		paymentStatus = "pending"
	}
	isPaid := paymentStatus == "paid"

	// Paid invoices get their own PDF; reuse only when the matching
	// variant already exists.
	if !force && rowStr(facture, "pdf_url") != "" && rowStr(facture, "pdf_status") == "generated" {
		existing := rowStr(facture, "pdf_url")
		if isPaid {
			existing = rowStr(facture, "pdf_acquittee_url")
		}
		if existing != "" {
			d.logger().Info("pdf already exists", "facture_id", factureID, "pdf_url", existing, "is_paid", isPaid)
			return map[string]any{
				"success":    true,
				"facture_id": factureID,
				"pdf_url":    existing,
				"pdf_status": "generated",
				"is_paid":    isPaid,
				"message":    "PDF already exists (use force_regenerate=true to regenerate)",
			}, nil
		}
	}

	qualificationID := rowStr(facture, "qualification_id")
	if qualificationID == "" {
		return nil, tool.BusinessValidation(fmt.Sprintf("Facture %s has no qualification_id", factureID))
	}

	pdfResult, err := d.Clients.Document.Post(ctx, "/generate/facture", map[string]any{
		"request_id":       reqID(ctx),
		"qualification_id": qualificationID,
		"is_paid":          isPaid,
		"send_email":       false,
	})
	if err != nil {
		return nil, err
	}

	pdfBase64 := rowStr(pdfResult, "pdf_base64")
	if pdfBase64 == "" {
		return nil, errors.New("tools: PDF generated but no pdf_base64 returned from document service")
	}

	numero := strings.TrimSpace(rowStr(facture, "numero_facture"))
	if numero == "" {
		numero = rowStr(pdfResult, "facture_numero")
	}
	if numero == "" {
		numero = factureID
	}

	year := fmt.Sprint(time.Now().UTC().Year())
	if created := rowStr(facture, "created_at"); len(created) >= 4 {
		year = created[:4]
	}

	// The acquittee PDF gets a distinct filename so the original emise
	// PDF is preserved.
	filename := numero + ".pdf"
	if isPaid {
		filename = numero + "_acquittee.pdf"
	}
	pdfURL, err := uploadBase64(ctx, d, "factures", filename, year+"/"+filename, pdfBase64)
	if err != nil {
		return nil, err
	}

	urlField := "pdf_url"
	if isPaid {
		urlField = "pdf_acquittee_url"
	}
	if _, err := d.Clients.Mutation.Call(ctx, http.MethodPut, facturePath(factureID), map[string]any{
		"pdf_status": "generated",
		urlField:     pdfURL,
	}); err != nil {
		return nil, err
	}

	d.logger().Info("workflow generate_facture_pdf complete",
		"facture_id", factureID, "pdf_url", pdfURL, "is_paid", isPaid)

	return map[string]any{
		"success":        true,
		"facture_id":     factureID,
		"pdf_url":        pdfURL,
		"pdf_status":     "generated",
		"is_paid":        isPaid,
		"numero_facture": numero,
	}, nil
}

func sendFactureEmail(ctx context.Context, d Deps, p tool.Params) (map[string]any, error) {
	factureID := strParam(p, "facture_id")
	recipient := strParam(p, "recipient_email")
	message := strParam(p, "message")

	d.logger().Info("workflow send_facture_email started", "facture_id", factureID)

	out, err := d.Clients.Query.RPC(ctx, "get_facture_by_id", map[string]any{"p_id": factureID})
	if err != nil {
		return nil, err
	}
	facture := firstRow(out)
	if facture == nil {
		return nil, tool.NotFound(fmt.Sprintf("Facture %s not found", factureID))
	}

	if recipient == "" {
		ent, err := d.Clients.Query.RPC(ctx, "get_entreprise_by_id", map[string]any{
			"p_id": facture["entreprise_id"],
		})
		if err != nil {
			return nil, err
		}
		recipient = rowStr(firstRow(ent), "email")
		if recipient == "" {
			return nil, tool.BusinessValidation("No email address found for this company")
		}
	}

	paymentStatus := rowStr(facture, "payment_status")
	if paymentStatus == "" {
		paymentStatus = "unpaid"
	}
	template := "facture_emise"
	if paymentStatus == "paid" {
		template = "facture_acquittee"
	}

	pdfResult, err := d.Clients.Document.Post(ctx, "/generate/facture", map[string]any{
		"request_id": reqID(ctx),
		"facture_id": factureID,
		"template":   template,
	})
	if err != nil {
		return nil, err
	}
	pdfBase64 := rowStr(pdfResult, "pdf_base64")
	if pdfBase64 == "" {
		return nil, errors.New("tools: PDF generated but no pdf_base64 returned from document service")
	}

	numero := rowStr(facture, "numero")
	if numero == "" {
		numero = factureID
	}
	pdfURL, err := uploadBase64(ctx, d, "factures", numero+".pdf", "factures/"+numero+".pdf", pdfBase64)
	if err != nil {
		return nil, err
	}

	emailResult, err := d.Clients.Email.Post(ctx, "/send", map[string]any{
		"to":          recipient,
		"subject":     "Facture " + numero,
		"template":    "facture",
		"message":     message,
		"attachments": []string{pdfURL},
	})
	if err != nil {
		return nil, err
	}

	if _, err := d.Clients.Mutation.Call(ctx, http.MethodPut, facturePath(factureID), map[string]any{
		"pdf_status": "sent",
		"pdf_url":    pdfURL,
	}); err != nil {
		return nil, err
	}

	sent := boolParam(emailResult, "success")
	d.logger().Info("workflow send_facture_email complete",
		"facture_id", factureID, "email_sent", sent)

	return map[string]any{
		"success":    true,
		"pdf_url":    pdfURL,
		"email_sent": sent,
		"recipient":  recipient,
	}, nil
}

func createAndSendFacture(ctx context.Context, d Deps, p tool.Params) (any, error) {
	d.logger().Info("workflow create_and_send_facture started")

	if d.Gate != nil && !hitl.Approved(p) &&
		d.Gate.NeedsApproval(ctx, hitl.WorkflowCreateAndSendFacture, p) {
		note := fmt.Sprintf("montant=%v EUR, qualification_id=%v, description=%v",
			p["montant"], p["qualification_id"], p["description"])
		pending, err := d.Gate.RequestApproval(ctx,
			hitl.WorkflowCreateAndSendFacture, "create_and_send_facture", p, note)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success":       false,
			"status":        "pending_validation",
			"request_id":    pending.RequestID,
			"message":       "Validation humaine requise. En attente d'approbation.",
			"expires_at":    pending.ExpiresAt.Format(time.RFC3339),
			"workflow_name": hitl.WorkflowCreateAndSendFacture,
		}, nil
	}

	created, err := createFacture(ctx, d, p)
	if err != nil {
		return nil, err
	}
	factureID := rowStr(created, "facture_id")
	if factureID == "" {
		factureID = rowStr(created, "id")
	}
	if factureID == "" {
		return nil, errors.New("tools: failed to create invoice, no facture_id returned")
	}

	if boolParam(p, "mark_as_paid") {
		if _, err := d.Clients.Mutation.Call(ctx, http.MethodPut, facturePath(factureID), map[string]any{
			"payment_status": "paid",
			"statut":         "payee",
			"date_paiement":  time.Now().UTC().Format("2006-01-02"),
		}); err != nil {
			return nil, err
		}
		d.logger().Info("facture marked paid before send", "facture_id", factureID)
	}

	sendResult, err := sendFactureEmail(ctx, d, tool.Params{
		"facture_id":      factureID,
		"recipient_email": p["recipient_email"],
		"message":         p["message"],
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(sendResult)+2)
	for k, v := range sendResult {
		out[k] = v
	}
	out["facture_id"] = factureID
	out["created"] = true

	d.logger().Info("workflow create_and_send_facture complete", "facture_id", factureID)
	return out, nil
}

func generateMonthlyReport(ctx context.Context, d Deps, p tool.Params) (any, error) {
	year := intParam(p, "year", 0)
	month := intParam(p, "month", 0)
	if month < 1 || month > 12 {
		return nil, tool.BusinessValidation("month must be between 1 and 12")
	}

	d.logger().Info("workflow generate_monthly_report started", "year", year, "month", month)

	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	// Revenue stats and unpaid invoices are independent reads.
	var (
		unpaid    any
		unpaidErr error
		wg        sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		unpaid, unpaidErr = d.Clients.Query.RPC(ctx, "get_unpaid_factures", map[string]any{
			"p_limit": 100,
		})
	}()
	stats, statsErr := d.Clients.Query.RPC(ctx, "get_revenue_stats", map[string]any{
		"p_start_date": start.Format("2006-01-02"),
		"p_end_date":   end.Format("2006-01-02"),
	})
	wg.Wait()
	if statsErr != nil {
		return nil, statsErr
	}
	if unpaidErr != nil {
		return nil, unpaidErr
	}

	pdfResult, err := d.Clients.Document.Post(ctx, "/generate/report", map[string]any{
		"request_id": reqID(ctx),
		"year":       year,
		"month":      month,
		"stats":      stats,
		"unpaid":     unpaid,
	})
	if err != nil {
		return nil, err
	}
	pdfBase64 := rowStr(pdfResult, "pdf_base64")
	if pdfBase64 == "" {
		return nil, errors.New("tools: report generated but no pdf_base64 returned from document service")
	}

	filename := fmt.Sprintf("monthly_%d_%02d.pdf", year, month)
	pdfURL, err := uploadBase64(ctx, d, "reports", filename, "reports/"+filename, pdfBase64)
	if err != nil {
		return nil, err
	}

	result := map[string]any{
		"success": true,
		"pdf_url": pdfURL,
		"year":    year,
		"month":   month,
		"stats":   stats,
	}

	if boolParam(p, "send_email") {
		recipient := strParam(p, "recipient_email")
		if recipient == "" {
			return nil, tool.BusinessValidation("recipient_email required when send_email=true")
		}
		emailResult, err := d.Clients.Email.Post(ctx, "/send", map[string]any{
			"to":          recipient,
			"subject":     fmt.Sprintf("Rapport mensuel %d/%d", month, year),
			"template":    "monthly_report",
			"attachments": []string{pdfURL},
		})
		if err != nil {
			return nil, err
		}
		result["email_sent"] = boolParam(emailResult, "success")
		result["recipient"] = recipient
	}

	d.logger().Info("workflow generate_monthly_report complete", "year", year, "month", month)
	return result, nil
}

var plaquettePaidStatuts = map[string]bool{
	"Payé": true, "Terminé": true, "payee": true, "paid": true,
}

func sendPlaquette(ctx context.Context, d Deps, p tool.Params) (any, error) {
	entrepriseID := strParam(p, "entreprise_id")
	message := strParam(p, "message")

	d.logger().Info("workflow send_plaquette started", "entreprise_id", entrepriseID)

	out, err := d.Clients.Query.RPC(ctx, "get_entreprise_by_id", map[string]any{"p_id": entrepriseID})
	if err != nil {
		return nil, err
	}
	entreprise := firstRow(out)
	if entreprise == nil {
		return nil, tool.NotFound(fmt.Sprintf("Entreprise %s not found", entrepriseID))
	}

	email := strParam(p, "recipient_email")
	if email == "" {
		email = rowStr(entreprise, "email")
	}
	if email == "" {
		return nil, tool.BusinessValidation(fmt.Sprintf(
			"Entreprise '%s' n'a pas d'email en base. Fournissez recipient_email pour forcer l'envoi.",
			rowStr(entreprise, "nom")))
	}

	entrepriseNom := rowStr(entreprise, "nom")
	contactNom := rowStr(entreprise, "contact_nom")
	if contactNom == "" {
		contactNom = rowStr(entreprise, "contact")
	}

	// A paid qualification in the history makes this a renewal rather
	// than a first contact. Failure to fetch history falls back to the
	// new-client message, the send still goes out.
	typeClient := "nouveau"
	var anneePrecedente, formatPrecedent any
	if qualifs, err := d.Clients.Query.RPC(ctx, "get_qualifications_by_entreprise", map[string]any{
		"p_entreprise_id": entrepriseID,
		"p_limit":         5,
	}); err != nil {
		d.logger().Warn("plaquette qualification history fetch failed", "error", err)
	} else if rows, ok := qualifs.([]any); ok {
		for _, row := range rows {
			q, _ := row.(map[string]any)
			if q == nil || !plaquettePaidStatuts[rowStr(q, "statut")] {
				continue
			}
			typeClient = "renouvellement"
			if created := rowStr(q, "created_at"); len(created) >= 4 {
				anneePrecedente = created[:4]
			}
			formatPrecedent = q["format_encart"]
			break
		}
	}

	d.logger().Info("plaquette context",
		"entreprise", entrepriseNom, "type_client", typeClient, "email", email)

	pdfResult, err := d.Clients.Document.Post(ctx, "/generate/plaquette", map[string]any{
		"request_id":            reqID(ctx),
		"entreprise_nom":        entrepriseNom,
		"contact_nom":           contactNom,
		"prospecteur_nom":       p["prospecteur_nom"],
		"prospecteur_telephone": p["prospecteur_telephone"],
		"prospecteur_email":     p["prospecteur_email"],
		"type_client":           typeClient,
		"annee_precedente":      anneePrecedente,
		"format_precedent":      formatPrecedent,
	})
	if err != nil {
		return nil, err
	}
	pdfBase64 := rowStr(pdfResult, "pdf_base64")
	if pdfBase64 == "" {
		return nil, errors.New("tools: plaquette PDF generated but no pdf_base64 returned")
	}

	safeNom := entrepriseNom
	if safeNom == "" {
		safeNom = "generique"
	}
	safeNom = strings.ReplaceAll(safeNom, " ", "_")
	safeNom = strings.ReplaceAll(safeNom, "/", "-")
	if runes := []rune(safeNom); len(runes) > 40 {
		safeNom = string(runes[:40])
	}
	filename := "Plaquette_2027_" + safeNom + ".pdf"
	pdfURL, err := uploadBase64(ctx, d, "plaquettes", filename, "2027/"+filename, pdfBase64)
	if err != nil {
		return nil, err
	}

	if _, err := d.Clients.Email.Post(ctx, "/send/plaquette", map[string]any{
		"to":                    email,
		"entreprise_nom":        entrepriseNom,
		"contact_nom":           contactNom,
		"type_client":           typeClient,
		"annee_precedente":      anneePrecedente,
		"format_precedent":      formatPrecedent,
		"prospecteur_nom":       p["prospecteur_nom"],
		"prospecteur_telephone": p["prospecteur_telephone"],
		"prospecteur_email":     p["prospecteur_email"],
		"message":               message,
		"pdf_base64":            pdfBase64,
		"pdf_filename":          filename,
	}); err != nil {
		return nil, err
	}

	d.logger().Info("workflow send_plaquette complete",
		"entreprise", entrepriseNom, "email", email, "type_client", typeClient, "pdf_url", pdfURL)

	return map[string]any{
		"success":        true,
		"entreprise_nom": entrepriseNom,
		"email":          email,
		"type_client":    typeClient,
		"pdf_url":        pdfURL,
		"message":        fmt.Sprintf("Plaquette 2027 envoyée à %s (%s)", entrepriseNom, email),
	}, nil
}
