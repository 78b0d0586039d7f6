package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"

	"attendease/internal/attendance"
	"attendease/internal/auth"
	"attendease/internal/card"
	"attendease/internal/config"
	"attendease/internal/store"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	cfg  config.App
	db   *store.DB
	repo *attendance.Repository
	out  io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate - create the database tables")
	fmt.Fprintln(cli.out, "  add-professor -course ID -professor ID [-name NAME] [-email EMAIL] - register a course card")
	fmt.Fprintln(cli.out, "  add-student -email EMAIL [-id ID] [-name NAME] - register a student")
	fmt.Fprintln(cli.out, "  enroll -course ID -email EMAIL - enroll a student in a course")
	fmt.Fprintln(cli.out, "  issue-token -email EMAIL -role student|professor|admin - print an access token")
	fmt.Fprintln(cli.out, "  encode-card -course ID -professor ID - print the hex payload to write to a card")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if err := cli.db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "migrated")
		return nil

	case "add-professor":
		cmd := flag.NewFlagSet("add-professor", flag.ContinueOnError)
		course := cmd.String("course", "", "Course id printed on the card.")
		professor := cmd.String("professor", "", "Professor id printed on the card.")
		name := cmd.String("name", "", "Display name; recorded as Unknown Professor when empty.")
		email := cmd.String("email", "", "Professor login email.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *course == "" || *professor == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.repo.UpsertProfessor(ctx, attendance.Professor{
			CourseID: *course, ProfessorID: *professor, ProfessorName: *name, ProfessorEmail: *email,
		})

	case "add-student":
		cmd := flag.NewFlagSet("add-student", flag.ContinueOnError)
		email := cmd.String("email", "", "Student login email.")
		id := cmd.String("id", "", "Student id.")
		name := cmd.String("name", "", "Student name.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.repo.UpsertStudent(ctx, attendance.Student{StudentEmail: *email, StudentID: *id, StudentName: *name})

	case "enroll":
		cmd := flag.NewFlagSet("enroll", flag.ContinueOnError)
		course := cmd.String("course", "", "Course id.")
		email := cmd.String("email", "", "Student email.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *course == "" || *email == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.repo.Enroll(ctx, *course, *email)

	case "issue-token":
		cmd := flag.NewFlagSet("issue-token", flag.ContinueOnError)
		email := cmd.String("email", "", "Token subject.")
		role := cmd.String("role", auth.RoleStudent, "Token role.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		tokens, err := auth.Issue(*email, *role, cli.cfg.JWTIssuer, cli.cfg.JWTSigningKey, cli.cfg.AccessTTL, cli.cfg.RefreshTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, tokens.AccessToken)
		return nil

	case "encode-card":
		cmd := flag.NewFlagSet("encode-card", flag.ContinueOnError)
		course := cmd.String("course", "", "Course id.")
		professor := cmd.String("professor", "", "Professor id.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *course == "" || *professor == "" {
			cmd.Usage()
			return errHelp
		}
		raw, err := card.Encode(*course, *professor)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, hex.EncodeToString(raw))
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}
