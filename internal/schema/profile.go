package schema

// AgeGroups are the accepted age bracket values for customer profiles.
var AgeGroups = []string{"10s", "20s", "30s", "40s", "50s", "60s", "70s+"}

// ProfileFieldSpecs defines the fields of an anonymized customer profile.
// The "source" discriminant decides the legal optional fields: human-sourced
// profiles carry a consent date, synthetic ones name the generator model.
var ProfileFieldSpecs = []FieldSpec{
	{Name: "id", Type: FieldText},
	{Name: "source", Type: FieldEnum, Required: true, EnumValues: []string{SourceHuman, SourceSynthetic}, Indexed: true},
	{Name: "name", Type: FieldText, Required: true, Searchable: true},
	{Name: "gender", Type: FieldEnum, Required: true, EnumValues: []string{"female", "male", "other"}, Indexed: true},
	{Name: "ageGroup", Type: FieldEnum, Required: true, EnumValues: AgeGroups, Indexed: true},
	{Name: "occupation", Type: FieldText, Searchable: true},
	{Name: "region", Type: FieldText, Searchable: true},
	{Name: "maritalStatus", Type: FieldEnum, EnumValues: []string{"single", "married", "divorced", "widowed"}},
	{Name: "annualIncome", Type: FieldNumeric},
	{Name: "riskTolerance", Type: FieldEnum, EnumValues: []string{"low", "moderate", "high"}},
	{Name: "products", Type: FieldList, Searchable: true},
	{Name: "notes", Type: FieldText, Searchable: true},
	{Name: "consentDate", Type: FieldDate, Sources: []string{SourceHuman}},
	{Name: "generatorModel", Type: FieldText, Sources: []string{SourceSynthetic}},
	{Name: "seedPrompt", Type: FieldText, Sources: []string{SourceSynthetic}},
}

func init() {
	Register(&EntityDef{
		Kind:       KindProfile,
		Label:      "Customer Profile",
		FieldSpecs: ProfileFieldSpecs,
	})
}
