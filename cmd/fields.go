package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/marcus/formsync/internal/client"
	"github.com/marcus/formsync/internal/models"
	"github.com/marcus/formsync/internal/output"
	"github.com/marcus/formsync/internal/suggest"
)

var fieldsCmd = &cobra.Command{
	Use:     "fields",
	Aliases: []string{"field"},
	Short:   "Add, change, move and remove form fields",
	GroupID: "forms",
}

var fieldsAddCmd = &cobra.Command{
	Use:   "add <form-id>",
	Short: "Append a field to a form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		label, _ := cmd.Flags().GetString("label")
		required, _ := cmd.Flags().GetBool("required")
		options, _ := cmd.Flags().GetStringArray("option")

		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		f, err := c.AddField(args[0], client.NewField{
			Type:     models.FieldType(typ),
			Label:    label,
			Required: required,
			Options:  options,
		})
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(f)
		}
		output.Success("Added %s field %q (%s)", f.Type, f.Label, f.ID)
		return nil
	},
}

var fieldsSetCmd = &cobra.Command{
	Use:   "set <form-id> <field-id>",
	Short: "Change a field's label, options, requiredness or show-if rule",
	Long: `Change a field. Only the flags given are applied.

A show-if rule is written as "<field> <operator> [value]", where <field> is the
ID or label of another field and <operator> is one of equals, not_equals,
contains, is_empty, is_not_empty. For example:

  formsync fields set frm_1 guests --show-if 'attending equals Yes'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		formID, fieldID := args[0], args[1]

		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}

		var patch client.FieldPatch
		flags := cmd.Flags()
		if flags.Changed("label") {
			v, _ := flags.GetString("label")
			patch.Label = &v
		}
		if flags.Changed("required") {
			v, _ := flags.GetBool("required")
			patch.Required = &v
		}
		if flags.Changed("option") {
			patch.Options, _ = flags.GetStringArray("option")
		}
		patch.ClearCondition, _ = flags.GetBool("clear-condition")
		if flags.Changed("show-if") {
			expr, _ := flags.GetString("show-if")
			form, err := c.GetForm(formID)
			if err != nil {
				return err
			}
			rule, err := parseShowIf(form, expr)
			if err != nil {
				return err
			}
			patch.ShowIf = rule
		}

		f, err := c.UpdateField(formID, fieldID, patch)
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(f)
		}
		output.Success("Updated field %q (%s)", f.Label, f.ID)
		return nil
	},
}

var fieldsRmCmd = &cobra.Command{
	Use:     "rm <form-id> <field-id>",
	Aliases: []string{"remove"},
	Short:   "Remove a field",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		if err := c.RemoveField(args[0], args[1]); err != nil {
			return err
		}
		output.Success("Removed field %s", args[1])
		return nil
	},
}

var fieldsMvCmd = &cobra.Command{
	Use:     "mv <form-id> <field-id> <position>",
	Aliases: []string{"move"},
	Short:   "Move a field to a 1-based position",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, err := strconv.Atoi(args[2])
		if err != nil || pos < 1 {
			return fmt.Errorf("position must be a number from 1, got %q", args[2])
		}

		c, err := newAuthedClient(cmd)
		if err != nil {
			return err
		}
		form, err := c.MoveField(args[0], args[1], pos-1)
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(form)
		}
		for i, f := range form.Fields {
			fmt.Println(output.FormatFieldLine(i, f, form))
		}
		return nil
	},
}

var fieldsRefsCmd = &cobra.Command{
	Use:   "refs <form-id>",
	Short: "List the fields a show-if rule may reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exclude, _ := cmd.Flags().GetString("exclude")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		refs, err := c.References(args[0], exclude)
		if err != nil {
			return err
		}
		if jsonMode() {
			return output.JSON(refs)
		}
		if len(refs) == 0 {
			fmt.Println("No fields can be referenced")
			return nil
		}
		for _, f := range refs {
			fmt.Printf("%s  %s  %s\n", output.FormatFieldType(f.Type), f.Label, f.ID)
		}
		return nil
	},
}

// parseShowIf reads "<field> <operator> [value]". The field may be named by
// ID or label; a multi-word label works as long as the operator follows it.
// The value is everything after the operator, inner spacing included.
func parseShowIf(form *models.Form, expr string) (*models.ConditionalRule, error) {
	words := wordSpans(expr)
	for i, w := range words {
		op := models.Operator(expr[w[0]:w[1]])
		if !op.IsValid() || i == 0 {
			continue
		}

		name := strings.Join(strings.Fields(expr[:w[0]]), " ")
		ref := form.FieldByID(name)
		if ref == nil {
			for j := range form.Fields {
				if strings.EqualFold(form.Fields[j].Label, name) {
					ref = &form.Fields[j]
					break
				}
			}
		}
		if ref == nil {
			var names []string
			for _, f := range form.Fields {
				names = append(names, f.ID, f.Label)
			}
			return nil, fmt.Errorf("show-if: no field named %q%s", name, suggest.Hint(suggest.Similar(name, names)))
		}

		value := strings.TrimSpace(expr[w[1]:])
		if op.NeedsValue() && value == "" {
			return nil, fmt.Errorf("show-if: %s needs a value", op)
		}
		if !op.NeedsValue() && value != "" {
			return nil, fmt.Errorf("show-if: %s takes no value", op)
		}
		return &models.ConditionalRule{FieldID: ref.ID, Operator: op, Value: value}, nil
	}

	ops := make([]string, 0, len(models.Operators()))
	for _, op := range models.Operators() {
		ops = append(ops, string(op))
	}
	return nil, fmt.Errorf("show-if: expected \"<field> <operator> [value]\" with operator one of %s", strings.Join(ops, ", "))
}

// wordSpans returns the [start, end) byte offsets of the whitespace
// separated words of s.
func wordSpans(s string) [][2]int {
	var spans [][2]int
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}

func init() {
	fieldsAddCmd.Flags().String("type", "text", "field type: text, email, number, select, checkbox, textarea")
	fieldsAddCmd.Flags().String("label", "", "field label (default: New <type> field)")
	fieldsAddCmd.Flags().Bool("required", false, "answer is required")
	fieldsAddCmd.Flags().StringArray("option", nil, "select option (repeatable)")

	fieldsSetCmd.Flags().String("label", "", "new label")
	fieldsSetCmd.Flags().Bool("required", false, "answer is required")
	fieldsSetCmd.Flags().StringArray("option", nil, "replace select options (repeatable)")
	fieldsSetCmd.Flags().String("show-if", "", `show-if rule: "<field> <operator> [value]"`)
	fieldsSetCmd.Flags().Bool("clear-condition", false, "remove the show-if rule")
	fieldsSetCmd.MarkFlagsMutuallyExclusive("show-if", "clear-condition")

	fieldsRefsCmd.Flags().String("exclude", "", "field being edited; left out of the list")

	fieldsCmd.AddCommand(fieldsAddCmd)
	fieldsCmd.AddCommand(fieldsSetCmd)
	fieldsCmd.AddCommand(fieldsRmCmd)
	fieldsCmd.AddCommand(fieldsMvCmd)
	fieldsCmd.AddCommand(fieldsRefsCmd)
	rootCmd.AddCommand(fieldsCmd)
}
