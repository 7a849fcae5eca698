package users

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestReadSeedCSV(t *testing.T) {
	const input = `ID;Firma;Anrede;Titel;Vorname;Nachname;Strasse;PLZ;Ort;Language;Personalization;Notes
0f8fad5b-d9cb-469f-a165-70867728950e;ACME;Herr;;Max;Mustermann;Weg 1;12345;Berlin;Deutsch;Du;
7c9e6679-7425-40de-944b-e07fc1f90ae7;ACME;Ms;;Jane;Doe;Road 2;99999;London;English;Sie;
not-a-guid;ACME;;;Bad;Row;;;;Deutsch;Du;
a1b2c3d4-0000-4000-8000-000000000001;ACME;;;;NoFirst;;;;Deutsch;Du;
short;row
`
	got, err := ReadSeedCSV(strings.NewReader(input), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("ReadSeedCSV: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d users, want 2: %+v", len(got), got)
	}

	if got[0].Name != "Max Mustermann" || got[0].Language != LanguageGerman || got[0].Salutation != SalutationInformal {
		t.Errorf("first user = %+v", got[0])
	}
	if got[1].UID.String() != "7c9e6679-7425-40de-944b-e07fc1f90ae7" {
		t.Errorf("second uid = %s", got[1].UID)
	}
	if got[1].Language != LanguageEnglish || got[1].Salutation != SalutationFormal {
		t.Errorf("second user = %+v", got[1])
	}
}

func TestReadSeedCSV_Empty(t *testing.T) {
	got, err := ReadSeedCSV(strings.NewReader(""), nil)
	if err != nil || len(got) != 0 {
		t.Errorf("ReadSeedCSV(empty) = %v, %v", got, err)
	}
}

func TestParseLanguageAndSalutation(t *testing.T) {
	for in, want := range map[string]Language{"English": LanguageEnglish, "englisch": LanguageEnglish, "ENG": LanguageEnglish, "Deutsch": LanguageGerman, "": LanguageGerman} {
		if got := parseLanguage(in); got != want {
			t.Errorf("parseLanguage(%q) = %v, want %v", in, got, want)
		}
	}
	for in, want := range map[string]Salutation{"Sie": SalutationFormal, "siezen": SalutationFormal, "Du": SalutationInformal, "": SalutationInformal} {
		if got := parseSalutation(in); got != want {
			t.Errorf("parseSalutation(%q) = %v, want %v", in, got, want)
		}
	}
}
