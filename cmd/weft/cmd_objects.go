package main

import (
	"fmt"
	"io"
	"os"

	"github.com/odvcencio/weft/pkg/object"
	"github.com/spf13/cobra"
)

func newHashObjectCmd(g *globalFlags) *cobra.Command {
	var write, stdin bool
	var typeName string

	cmd := &cobra.Command{
		Use:   "hash-object [file]",
		Short: "Compute an object id, optionally writing the object",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objType, ok := object.ParseObjectType(typeName)
			if !ok {
				return fmt.Errorf("hash-object: unknown type %q", typeName)
			}
			var data []byte
			var err error
			switch {
			case stdin:
				data, err = io.ReadAll(cmd.InOrStdin())
			case len(args) == 1:
				data, err = os.ReadFile(args[0])
			default:
				return fmt.Errorf("hash-object: need a file or --stdin")
			}
			if err != nil {
				return fmt.Errorf("hash-object: %w", err)
			}

			h := object.HashObject(objType, data)
			if write {
				_, r, err := g.openRepo(cmd)
				if err != nil {
					return err
				}
				if h, err = r.Store.Write(objType, data); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Hex())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the object into the store")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "read the content from stdin")
	cmd.Flags().StringVarP(&typeName, "type", "t", string(object.TypeBlob), "object type")
	return cmd
}

func newCatFileCmd(g *globalFlags) *cobra.Command {
	var showType, showSize, pretty bool

	cmd := &cobra.Command{
		Use:   "cat-file <revision>",
		Short: "Show an object's type, size or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := g.openRepo(cmd)
			if err != nil {
				return err
			}
			h, err := r.ResolveRevision(args[0])
			if err != nil {
				return err
			}
			objType, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, objType)
			case showSize:
				fmt.Fprintln(out, len(data))
			case pretty && objType == object.TypeTree:
				tree, err := r.Store.ReadTree(h)
				if err != nil {
					return err
				}
				for _, e := range tree.Entries {
					kind := object.TypeBlob
					if e.IsDir() {
						kind = object.TypeTree
					}
					fmt.Fprintf(out, "%s %s %s\t%s\n", modeOctal(e.Mode), kind, e.Hash.Hex(), e.Name)
				}
			default:
				_, err = out.Write(data)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the object type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "print the object size")
	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "pretty-print trees")
	cmd.MarkFlagsMutuallyExclusive("type", "size", "pretty")
	return cmd
}

func modeOctal(mode string) string {
	if object.NormalizeMode(mode) == object.TreeModeDir {
		return "040000"
	}
	return mode
}
