package schema

// ProductCategories are the accepted financial product categories.
var ProductCategories = []string{"deposit", "fund", "insurance", "loan", "pension"}

// ProductFieldSpecs defines the fields of a financial product. Human-sourced
// products record a reviewer; synthetic ones name the generator model.
var ProductFieldSpecs = []FieldSpec{
	{Name: "id", Type: FieldText},
	{Name: "source", Type: FieldEnum, Required: true, EnumValues: []string{SourceHuman, SourceSynthetic}, Indexed: true},
	{Name: "name", Type: FieldText, Required: true, Searchable: true},
	{Name: "category", Type: FieldEnum, Required: true, EnumValues: ProductCategories, Indexed: true},
	{Name: "riskLevel", Type: FieldEnum, Required: true, EnumValues: []string{"low", "moderate", "high"}, Indexed: true},
	{Name: "interestRate", Type: FieldNumeric},
	{Name: "minAmount", Type: FieldNumeric},
	{Name: "termMonths", Type: FieldNumeric},
	{Name: "description", Type: FieldText, Searchable: true},
	{Name: "tags", Type: FieldList, Searchable: true},
	{Name: "reviewedBy", Type: FieldText, Sources: []string{SourceHuman}},
	{Name: "generatorModel", Type: FieldText, Sources: []string{SourceSynthetic}},
}

func init() {
	Register(&EntityDef{
		Kind:       KindProduct,
		Label:      "Financial Product",
		FieldSpecs: ProductFieldSpecs,
	})
}
