package i18n

// builtinMessages holds the per-language templates for the engine tags the
// backend itself produces plus the common engine-level tags. English is the
// reference set; the other languages fall back to it for missing tags.
var builtinMessages = map[string]map[string]string{
	"en": {
		"TEST_ABANDONED":        "The test runner disappeared and the test was marked as failed",
		"TEST_DIED":             "An error occurred and the test was aborted: {reason}",
		"GLOBAL_VERSION":        "Running with engine version {version}",
		"NO_NETWORK":            "Both IPv4 and IPv6 transport are disabled; nothing to test",
		"NS_NO_RESPONSE":        "Nameserver {ns} did not respond to queries over {proto}",
		"NS_BAD_REFERRAL":       "Nameserver {ns} returned a bad referral for {domain}",
		"DS_DOES_NOT_MATCH_DNSKEY": "DS record with key tag {keytag} does not match any DNSKEY",
		"NO_DNSKEY":             "No DNSKEY record found at the child zone apex",
		"DELEGATION_OK":         "The delegation of {domain} is consistent",
	},
	"fr": {
		"TEST_ABANDONED":        "Le testeur a disparu et le test a été marqué comme échoué",
		"TEST_DIED":             "Une erreur est survenue et le test a été interrompu : {reason}",
		"GLOBAL_VERSION":        "Exécution avec la version {version} du moteur",
		"NO_NETWORK":            "Les transports IPv4 et IPv6 sont désactivés ; rien à tester",
		"NS_NO_RESPONSE":        "Le serveur de noms {ns} n'a pas répondu aux requêtes en {proto}",
		"NS_BAD_REFERRAL":       "Le serveur de noms {ns} a renvoyé un renvoi incorrect pour {domain}",
		"DS_DOES_NOT_MATCH_DNSKEY": "L'enregistrement DS avec l'étiquette de clé {keytag} ne correspond à aucune DNSKEY",
		"NO_DNSKEY":             "Aucun enregistrement DNSKEY trouvé à l'apex de la zone fille",
		"DELEGATION_OK":         "La délégation de {domain} est cohérente",
	},
	"sv": {
		"TEST_ABANDONED":        "Testköraren försvann och testet markerades som misslyckat",
		"TEST_DIED":             "Ett fel inträffade och testet avbröts: {reason}",
		"GLOBAL_VERSION":        "Kör med motorversion {version}",
		"NO_NETWORK":            "Både IPv4- och IPv6-transport är avstängda; inget att testa",
		"NS_NO_RESPONSE":        "Namnservern {ns} svarade inte på frågor över {proto}",
		"NS_BAD_REFERRAL":       "Namnservern {ns} returnerade en felaktig hänvisning för {domain}",
		"DS_DOES_NOT_MATCH_DNSKEY": "DS-posten med nyckeltagg {keytag} matchar ingen DNSKEY",
		"NO_DNSKEY":             "Ingen DNSKEY-post hittades vid barnzonens apex",
		"DELEGATION_OK":         "Delegeringen av {domain} är konsekvent",
	},
	"da": {
		"TEST_ABANDONED":        "Testkøreren forsvandt og testen blev markeret som mislykket",
		"TEST_DIED":             "Der opstod en fejl og testen blev afbrudt: {reason}",
		"GLOBAL_VERSION":        "Kører med motorversion {version}",
		"NO_NETWORK":            "Både IPv4- og IPv6-transport er slået fra; intet at teste",
		"NS_NO_RESPONSE":        "Navneserveren {ns} svarede ikke på forespørgsler over {proto}",
		"NS_BAD_REFERRAL":       "Navneserveren {ns} returnerede en forkert henvisning for {domain}",
		"DS_DOES_NOT_MATCH_DNSKEY": "DS-posten med nøgletag {keytag} matcher ingen DNSKEY",
		"NO_DNSKEY":             "Ingen DNSKEY-post fundet ved barnezonens apex",
		"DELEGATION_OK":         "Delegeringen af {domain} er konsistent",
	},
}
