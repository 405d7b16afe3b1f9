package match_test

import (
	"fmt"

	"github.com/formpal/formpal/internal/match"
	"github.com/formpal/formpal/internal/schema"
)

// Short titles match any label containing them, and the first item in
// collection order wins.
func ExampleDecide() {
	items := schema.Collection{
		{ID: "qi_2", Title: "Fee", Content: "5%"},
		{ID: "qi_1", Title: "Referral fee", Content: "none"},
	}

	for _, label := range []string{"Fee structure for project", "Referral fee", "Start date"} {
		d := match.Decide(label, "", items)
		fmt.Printf("%s: %s %s\n", label, d.Kind, d.Item.Content)
	}
	// Output:
	// Fee structure for project: fill 5%
	// Referral fee: fill 5%
	// Start date: no_match
}

func ExampleCapture() {
	items := schema.Collection{{ID: "qi_1", Title: "Salary", Content: "80k"}}

	fmt.Println(match.Capture("Expected salary", "90k", items).Action)
	fmt.Println(match.Capture("Expected salary", "80k", items).Action)
	fmt.Println(match.Capture("Notice period", "2 weeks", items).Action)
	fmt.Println(match.Capture("Notice period", "", items).Action)
	// Output:
	// update
	// none
	// create
	// none
}
