package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/L-L777/classGrabber/internal/config"
	"github.com/L-L777/classGrabber/internal/db"
	"github.com/L-L777/classGrabber/internal/migrate"
	"github.com/L-L777/classGrabber/internal/store"
)

func newCourseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Manage the course watch list (non-UI)",
	}
	cmd.AddCommand(newCourseAddCmd())
	cmd.AddCommand(newCourseListCmd())
	cmd.AddCommand(newCourseRmCmd())
	return cmd
}

func openRepo(cmd *cobra.Command) (*store.Repo, func(), error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	mgr, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	ctx := context.Background()
	d, err := db.Open(ctx, mgr.Get().DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, nil, err
	}
	return store.NewRepo(d), d.Close, nil
}

func newCourseAddCmd() *cobra.Command {
	var (
		id      int64
		name    string
		teacher string
		note    string
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Watch a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			course := store.Course{ID: id, Name: name, Teacher: teacher, Note: note}
			if err := repo.Add(context.Background(), course); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "watching course %d %q\n", id, name)
			return nil
		},
	}

	c.Flags().Int64Var(&id, "id", 0, "course id (kcrwdm)")
	c.Flags().StringVar(&name, "name", "", "course name")
	c.Flags().StringVar(&teacher, "teacher", "", "teacher name")
	c.Flags().StringVar(&note, "note", "", "free-form note")
	_ = c.MarkFlagRequired("id")
	_ = c.MarkFlagRequired("name")
	return c
}

func newCourseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the watch list",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			courses, err := repo.List(context.Background())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTEACHER\tNOTE")
			for _, c := range courses {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Name, c.Teacher, c.Note)
			}
			return w.Flush()
		},
	}
}

func newCourseRmCmd() *cobra.Command {
	var id int64

	c := &cobra.Command{
		Use:   "rm",
		Short: "Stop watching a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeDB, err := openRepo(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := repo.Remove(context.Background(), id); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "removed course %d\n", id)
			return nil
		},
	}

	c.Flags().Int64Var(&id, "id", 0, "course id (kcrwdm)")
	_ = c.MarkFlagRequired("id")
	return c
}
