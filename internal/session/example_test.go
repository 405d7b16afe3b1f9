package session_test

import (
	"context"
	"fmt"
	"log"

	"github.com/formpal/formpal/internal/broadcast"
	"github.com/formpal/formpal/internal/page"
	"github.com/formpal/formpal/internal/session"
	"github.com/formpal/formpal/internal/store"
)

// This example wires one context to a form and fills it from a saved item.
func ExampleSession_AutofillAllOnLoad() {
	mem := store.NewMemory(nil)
	defer mem.Close()
	hub := broadcast.NewLocalHub(nil)

	form := page.NewForm(page.FormSpec{Groups: []page.GroupSpec{{
		Name:   page.GroupQuestionAnswers,
		Fields: []page.FieldSpec{{Label: "Please share your portfolio link"}},
	}}})

	s, err := session.New(&session.Config{Store: mem, Bus: hub.Endpoint("tab-1"), Source: form})
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer s.Stop()

	fmt.Println(s.Add(ctx, "Portfolio link", "example.com").Message)
	fmt.Println(s.AutofillAllOnLoad().Message)

	field, _ := form.Lookup("Please share your portfolio link")
	fmt.Println(field.Value())
	// Output:
	// Saved
	// Filled 1 field(s)
	// example.com
}
