package prompt

import (
	"fmt"
	"time"
)

// DefaultLanguage is the fallback when a configured language has no fragments.
const DefaultLanguage = "en"

// personaPrompts holds the per-language persona fragment.
var personaPrompts = map[string]string{
	"en": "You are 'Al', a helpful AI Assistant that controls the devices in a house. Complete the following task as instructed with the information provided only.",
	"de": "Du bist 'Al', ein hilfreicher KI-Assistent, der die Geraete in einem Haus steuert. Fuehren Sie die folgende Aufgabe gemaess den Anweisungen durch.",
	"fr": "Vous etes 'Al', un assistant IA utile qui controle les appareils d'une maison. Effectuez la tache suivante comme indique.",
	"es": "Eres 'Al', un util asistente de IA que controla los dispositivos de una casa. Complete la siguiente tarea segun las instrucciones.",
}

// ungroupedHeadings names the section for devices without an area. A language
// mapping to the empty string omits ungrouped devices entirely.
var ungroupedHeadings = map[string]string{
	"en": "(ungrouped)",
	"de": "(nicht zugeordnet)",
	"fr": "(non groupe)",
	"es": "(sin agrupar)",
}

var germanDays = []string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"}
var germanMonths = []string{"Januar", "Februar", "Maerz", "April", "Mai", "Juni", "Juli", "August", "September", "Oktober", "November", "Dezember"}

var frenchDays = []string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
var frenchMonths = []string{"janvier", "fevrier", "mars", "avril", "mai", "juin", "juillet", "aout", "septembre", "octobre", "novembre", "decembre"}

var spanishDays = []string{"domingo", "lunes", "martes", "miercoles", "jueves", "viernes", "sabado"}
var spanishMonths = []string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}

// currentDate renders the localized current-date fragment.
func currentDate(language string, now time.Time) string {
	switch language {
	case "de":
		return fmt.Sprintf("Die aktuelle Uhrzeit und das aktuelle Datum sind %s %s, %d %s %d.",
			now.Format("15:04"), germanDays[now.Weekday()], now.Day(), germanMonths[now.Month()-1], now.Year())
	case "fr":
		return fmt.Sprintf("L'heure et la date actuelles sont %s %s, %d %s %d.",
			now.Format("15:04"), frenchDays[now.Weekday()], now.Day(), frenchMonths[now.Month()-1], now.Year())
	case "es":
		return fmt.Sprintf("La hora y fecha actuales son %s %s, %d de %s de %d.",
			now.Format("15:04"), spanishDays[now.Weekday()], now.Day(), spanishMonths[now.Month()-1], now.Year())
	default:
		return fmt.Sprintf("The current time and date is %s.",
			now.Format("03:04 PM on Monday January 02, 2006"))
	}
}

// persona returns the persona fragment for the language, defaulting to English.
func persona(language string) string {
	if p, ok := personaPrompts[language]; ok {
		return p
	}
	return personaPrompts[DefaultLanguage]
}

// ungroupedHeading returns the heading for area-less devices. ok is false when
// the language omits ungrouped devices.
func ungroupedHeading(language string) (string, bool) {
	h, found := ungroupedHeadings[language]
	if !found {
		h = ungroupedHeadings[DefaultLanguage]
	}
	return h, h != ""
}
