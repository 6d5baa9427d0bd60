package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/VitalPredict/app/models"
	"github.com/ManuelReschke/VitalPredict/app/repository"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/database"
	"github.com/ManuelReschke/VitalPredict/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	database.SetupDatabase()
	repos := repository.NewRepositories(database.GetDB())

	if err := run(repos, os.Args[1], os.Args[2:]); err != nil {
		log.Fatal(err)
	}
}

func run(repos *repository.Repositories, command string, args []string) error {
	switch command {
	case "create":
		if len(args) < 3 {
			return errors.New("usage: create <name> <email> <password>")
		}
		user, err := models.CreateUser(args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("invalid user: %w", err)
		}
		if err := repos.User.Create(user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		log.Printf("Created user %d <%s>", user.ID, user.Email)

	case "apikey":
		if len(args) < 1 {
			return errors.New("usage: apikey <email>")
		}
		user, err := findUser(repos, args[0])
		if err != nil {
			return err
		}
		key, err := user.IssueAPIKey()
		if err != nil {
			return fmt.Errorf("failed to generate api key: %w", err)
		}
		if err := repos.User.Update(user); err != nil {
			return fmt.Errorf("failed to store api key: %w", err)
		}
		log.Printf("Issued api key for <%s>, it is shown only once:", user.Email)
		fmt.Println(key)

	case "revoke":
		if len(args) < 1 {
			return errors.New("usage: revoke <email>")
		}
		user, err := findUser(repos, args[0])
		if err != nil {
			return err
		}
		user.RevokeAPIKey()
		if err := repos.User.Update(user); err != nil {
			return fmt.Errorf("failed to revoke api key: %w", err)
		}
		log.Printf("Revoked api key of <%s>", user.Email)

	case "grant", "revoke-role":
		if len(args) < 2 {
			return fmt.Errorf("usage: %s <email> <role>", command)
		}
		user, err := findUser(repos, args[0])
		if err != nil {
			return err
		}
		role, err := repos.Role.GetByName(strings.ToLower(args[1]))
		if err != nil {
			return fmt.Errorf("role %q: %w", args[1], err)
		}
		if command == "grant" {
			created, err := repos.Role.Assign(user.ID, role.ID)
			if err != nil {
				return fmt.Errorf("failed to assign role: %w", err)
			}
			log.Printf("Granted %s to <%s> (new=%t)", role.Name, user.Email, created)
		} else {
			existed, err := repos.Role.Remove(user.ID, role.ID)
			if err != nil {
				return fmt.Errorf("failed to remove role: %w", err)
			}
			log.Printf("Removed %s from <%s> (existed=%t)", role.Name, user.Email, existed)
		}

	case "disable", "enable":
		if len(args) < 1 {
			return fmt.Errorf("usage: %s <email>", command)
		}
		user, err := findUser(repos, args[0])
		if err != nil {
			return err
		}
		user.Status = models.STATUS_ACTIVE
		if command == "disable" {
			user.Status = models.STATUS_DISABLED
		}
		if err := repos.User.Update(user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		log.Printf("User <%s> is now %s", user.Email, user.Status)

	case "delete":
		if len(args) < 1 {
			return errors.New("usage: delete <email>")
		}
		user, err := findUser(repos, args[0])
		if err != nil {
			return err
		}
		isAdmin, err := repos.Role.HasRole(user.ID, models.RoleAdmin)
		if err != nil {
			return fmt.Errorf("failed to check roles: %w", err)
		}
		if isAdmin {
			return fmt.Errorf("user <%s> still has the %s role, revoke it first", user.Email, models.RoleAdmin)
		}
		if err := repos.User.Delete(user.ID); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		log.Printf("Deleted user <%s>", user.Email)

	case "list":
		users, err := repos.User.List(0, 1000)
		if err != nil {
			return err
		}
		ids := make([]uint, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		roles, err := repos.Role.RoleNamesForUsers(ids)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("%d\t%s\t%s\t%s\n", u.ID, u.Email, u.Status, strings.Join(roles[u.ID], ","))
		}

	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func findUser(repos *repository.Repositories, email string) (*models.User, error) {
	user, err := repos.User.GetByEmail(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no user with email %q", email)
	}
	return user, err
}

func printUsage() {
	fmt.Println("Usage: go run cmd/useradmin/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  create <name> <email> <password>  - create an operator account")
	fmt.Println("  apikey <email>                    - issue a new api key")
	fmt.Println("  revoke <email>                    - revoke the api key")
	fmt.Println("  grant <email> <role>              - assign a role")
	fmt.Println("  revoke-role <email> <role>        - remove a role")
	fmt.Println("  enable|disable <email>            - change account status")
	fmt.Println("  delete <email>                    - delete a non-admin account")
	fmt.Println("  list                              - list users with roles")
}
