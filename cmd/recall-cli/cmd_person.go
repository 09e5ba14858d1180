package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/persistorai/recall/client"
)

func newPersonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "person",
		Short: "Manage persons, aliases, facts and links",
	}
	cmd.AddCommand(personCreateCmd())
	cmd.AddCommand(personGetCmd())
	cmd.AddCommand(personResolveCmd())
	cmd.AddCommand(personAliasCmd())
	cmd.AddCommand(personFactCmd())
	cmd.AddCommand(personRelateCmd())
	cmd.AddCommand(personMergeCmd())
	cmd.AddCommand(personLinkCmd())
	return cmd
}

func personCreateCmd() *cobra.Command {
	var aliases, phones, emails []string
	cmd := &cobra.Command{
		Use:   "create <canonical-name>",
		Short: "Create a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := apiClient.Persons.Create(cmd.Context(), client.CreatePersonRequest{
				CanonicalName: args[0],
				Aliases:       aliases,
				Phones:        phones,
				Emails:        emails,
			})
			if err != nil {
				return fmt.Errorf("create person: %w", err)
			}
			output(p, p.ID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&aliases, "alias", nil, "Additional names (repeatable)")
	cmd.Flags().StringSliceVar(&phones, "phone", nil, "Phone numbers (repeatable)")
	cmd.Flags().StringSliceVar(&emails, "email", nil, "Email addresses (repeatable)")
	return cmd
}

func personGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a person with aliases, facts and relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := apiClient.Persons.Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get person: %w", err)
			}
			if flagFmt == "table" {
				rows := make([][]string, 0, len(p.Aliases)+len(p.Facts))
				for _, a := range p.Aliases {
					rows = append(rows, []string{"alias", a.Kind, a.Alias})
				}
				for _, f := range p.Facts {
					rows = append(rows, []string{"fact", f.Key, f.Value})
				}
				for _, r := range p.Relationships {
					rows = append(rows, []string{"relation", r.RelationType, r.RelatedID})
				}
				fmt.Printf("%s (%s)\n\n", p.CanonicalName, p.ID)
				formatTable([]string{"KIND", "KEY", "VALUE"}, rows)
				return nil
			}
			output(p, p.ID)
			return nil
		},
	}
}

func personResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <name|phone|email>",
		Short: "Resolve a name to persons",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiClient.Persons.Resolve(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			if flagFmt == "table" {
				rows := make([][]string, 0, len(res.Candidates))
				for _, c := range res.Candidates {
					rows = append(rows, []string{c.PersonID, c.CanonicalName, c.Alias, c.Kind})
				}
				fmt.Printf("status: %s\n\n", res.Status)
				formatTable([]string{"PERSON", "NAME", "ALIAS", "KIND"}, rows)
				return nil
			}
			ids := make([]string, len(res.Candidates))
			for i, c := range res.Candidates {
				ids[i] = c.PersonID
			}
			output(res, strings.Join(ids, "\n"))
			return nil
		},
	}
}

func personAliasCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "alias <person-id> <alias>",
		Short: "Add an alias to a person",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			added, err := apiClient.Persons.AddAlias(cmd.Context(), args[0], args[1], kind)
			if err != nil {
				return fmt.Errorf("add alias: %w", err)
			}
			output(map[string]any{"person_id": args[0], "added": added}, fmt.Sprintf("%t", added))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Alias kind: name|nickname|phone|email|handle (classified when empty)")
	return cmd
}

func personFactCmd() *cobra.Command {
	var confidence float64
	var source string
	cmd := &cobra.Command{
		Use:   "fact <person-id> <key> <value>",
		Short: "Set a fact on a person",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := apiClient.Persons.UpsertFact(cmd.Context(), args[0], client.FactRequest{
				Key:        args[1],
				Value:      args[2],
				Confidence: confidence,
				Source:     source,
			})
			if err != nil {
				return fmt.Errorf("set fact: %w", err)
			}
			output(f, f.Value)
			return nil
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence in (0,1] (server default when 0)")
	cmd.Flags().StringVar(&source, "source", "cli", "Where the fact came from")
	return cmd
}

func personRelateCmd() *cobra.Command {
	var confidence float64
	cmd := &cobra.Command{
		Use:   "relate <person-id> <related-id> <relation-type>",
		Short: "Relate two persons",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := apiClient.Persons.UpsertRelationship(cmd.Context(), args[0], client.RelationshipRequest{
				RelatedID:    args[1],
				RelationType: args[2],
				Confidence:   confidence,
			})
			if err != nil {
				return fmt.Errorf("relate: %w", err)
			}
			formatQuiet("ok")
			return nil
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence in (0,1] (server default when 0)")
	return cmd
}

func personMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <source-id> <target-id>",
		Short: "Merge a duplicate person into another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiClient.Persons.Merge(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("merge: %w", err)
			}
			output(res, res.TargetID)
			return nil
		},
	}
}

func personLinkCmd() *cobra.Command {
	var confidence float64
	cmd := &cobra.Command{
		Use:   "link <person-id> <asset-ref> <role>",
		Short: "Link a person to an asset as author, recipient, participant or mentioned",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := apiClient.Persons.LinkPersonAsset(cmd.Context(), client.PersonAssetLink{
				PersonID:   args[0],
				AssetRef:   args[1],
				Role:       args[2],
				Confidence: confidence,
			})
			if err != nil {
				return fmt.Errorf("link: %w", err)
			}
			formatQuiet("ok")
			return nil
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", 0, "Confidence in (0,1] (server default when 0)")
	return cmd
}
