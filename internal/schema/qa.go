package schema

// QAFieldSpecs defines the fields of a chain-of-thought question/answer
// record. The three mandatory reasoning steps (cot1-cot3) appear as ordinary
// columns so tabular headers stay stable; dynamic steps beyond them are
// extracted into the record's ordered step list at build time. profileId is
// an informational reference, not an enforced foreign key, so partial and
// streaming imports never fail on ordering.
var QAFieldSpecs = []FieldSpec{
	{Name: "id", Type: FieldText},
	{Name: "source", Type: FieldEnum, Required: true, EnumValues: []string{SourceHuman, SourceSynthetic}, Indexed: true},
	{Name: "question", Type: FieldText, Required: true, Searchable: true},
	{Name: "cot1", Type: FieldText, Required: true},
	{Name: "cot2", Type: FieldText, Required: true},
	{Name: "cot3", Type: FieldText, Required: true},
	{Name: "answer", Type: FieldText, Required: true, Searchable: true},
	{Name: "topic", Type: FieldText, Indexed: true},
	{Name: "difficulty", Type: FieldEnum, EnumValues: []string{"easy", "medium", "hard"}, Indexed: true},
	{Name: "profileId", Type: FieldText},
	{Name: "reviewedBy", Type: FieldText, Sources: []string{SourceHuman}},
	{Name: "generatorModel", Type: FieldText, Sources: []string{SourceSynthetic}},
}

func init() {
	Register(&EntityDef{
		Kind:       KindQA,
		Label:      "QA Record",
		FieldSpecs: QAFieldSpecs,
		HasSteps:   true,
	})
}
