package http

import (
	"context"
	"strings"
)

type language string

const (
	langEN language = "en"
	langFR language = "fr"
)

// preferredLanguage picks the first supported tag of an Accept-Language
// header. Quality values are ignored; clients list their preference first.
func preferredLanguage(header string) language {
	for _, part := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
		switch {
		case tag == "fr" || strings.HasPrefix(tag, "fr-"):
			return langFR
		case tag == "en" || strings.HasPrefix(tag, "en-"):
			return langEN
		}
	}
	return langEN
}

func languageFromContext(ctx context.Context) language {
	if lang, ok := ctx.Value(ctxKeyLanguage).(language); ok {
		return lang
	}
	return langEN
}

var messageCatalog = map[string]map[language]string{
	"VALIDATION_ERROR": {
		langFR: "requête invalide",
	},
	"REASON_REQUIRED": {
		langEN: "a reason is required",
		langFR: "un motif est obligatoire",
	},
	"AMOUNT_OUT_OF_RANGE": {
		langEN: "amount out of range",
		langFR: "montant hors limites",
	},
	"PAYOUT_DESTINATION_MISSING": {
		langEN: "the influencer has not finished payout onboarding",
		langFR: "l'influenceur n'a pas finalisé son compte de versement",
	},
	"INSUFFICIENT_AUTHORIZATION": {
		langEN: "the authorized amount does not cover the order",
		langFR: "le montant autorisé ne couvre pas la commande",
	},
	"UNAUTHORIZED": {
		langEN: "invalid or missing credentials",
		langFR: "identifiants absents ou invalides",
	},
	"FORBIDDEN": {
		langEN: "you are not allowed to perform this action",
		langFR: "vous n'êtes pas autorisé à effectuer cette action",
	},
	"ORDER_NOT_FOUND": {
		langEN: "order not found",
		langFR: "commande introuvable",
	},
	"OFFER_NOT_FOUND": {
		langEN: "offer not found",
		langFR: "offre introuvable",
	},
	"CONTESTATION_NOT_FOUND": {
		langEN: "contestation not found",
		langFR: "contestation introuvable",
	},
	"NOT_FOUND": {
		langEN: "resource not found",
		langFR: "ressource introuvable",
	},
	"PROCESSOR_ERROR": {
		langEN: "the payment provider is unavailable, please retry later",
		langFR: "le prestataire de paiement est indisponible, veuillez réessayer plus tard",
	},
	"PAYMENT_ALREADY_CAPTURED": {
		langEN: "payment already captured",
		langFR: "paiement déjà encaissé",
	},
	"DUPLICATE_OPERATION": {
		langEN: "operation already performed",
		langFR: "opération déjà effectuée",
	},
	"INVALID_TRANSITION": {
		langEN: "this action is not possible in the order's current status",
		langFR: "cette action est impossible dans le statut actuel de la commande",
	},
	"ORDER_BUSY": {
		langEN: "another action is in progress for this order",
		langFR: "une autre action est en cours sur cette commande",
	},
	"PAYMENT_NOT_CAPTURABLE": {
		langEN: "payment cannot be captured",
		langFR: "le paiement ne peut pas être encaissé",
	},
	"CONTEST_WINDOW_OPEN": {
		langEN: "a contestation can only be opened 48 hours after delivery",
		langFR: "une contestation ne peut être ouverte que 48 heures après la livraison",
	},
	"CONTESTATION_PENDING": {
		langEN: "a contestation is already pending for this order",
		langFR: "une contestation est déjà en cours pour cette commande",
	},
	"CONTESTATION_DECIDED": {
		langEN: "contestation already decided",
		langFR: "contestation déjà tranchée",
	},
	"INSUFFICIENT_FUNDS": {
		langEN: "insufficient available balance",
		langFR: "solde disponible insuffisant",
	},
	"STATE_CONFLICT": {
		langEN: "the resource changed, reload and retry",
		langFR: "la ressource a changé, rechargez et réessayez",
	},
	"CONFLICT": {
		langEN: "conflict",
		langFR: "conflit",
	},
	"RATE_LIMITED": {
		langEN: "too many requests",
		langFR: "trop de requêtes",
	},
	"INTERNAL_ERROR": {
		langEN: "internal server error",
		langFR: "erreur interne du serveur",
	},
}

func localize(code string, lang language, fallback string) string {
	if byLang, ok := messageCatalog[code]; ok {
		if msg, ok := byLang[lang]; ok && msg != "" {
			return msg
		}
	}
	return fallback
}
