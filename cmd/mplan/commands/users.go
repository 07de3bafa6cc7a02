package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/mplan/auth"
	"github.com/teranos/mplan/errors"
	"github.com/teranos/mplan/sym"
)

// UsersCmd represents the users command
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: sym.User + " Manage mplan user accounts",
	Long: sym.User + ` users — Manage mplan user accounts

Examples:
  mplan users ls                                  # List accounts
  mplan users add alice --password secret         # Create an account
  mplan users add root --password secret --admin  # Create an admin
  mplan users rm {id}                             # Delete an account`,
}

var usersListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List user accounts",
	RunE:    runUsersList,
}

var usersAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a user account",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsersAdd,
}

var usersRemoveCmd = &cobra.Command{
	Use:     "rm [id]",
	Aliases: []string{"remove"},
	Short:   "Delete a user account",
	Args:    cobra.ExactArgs(1),
	RunE:    runUsersRemove,
}

var (
	usersAddPassword string
	usersAddAdmin    bool
)

func init() {
	UsersCmd.AddCommand(usersListCmd)
	UsersCmd.AddCommand(usersAddCmd)
	UsersCmd.AddCommand(usersRemoveCmd)

	usersAddCmd.Flags().StringVar(&usersAddPassword, "password", "", "Password for the new account")
	usersAddCmd.Flags().BoolVar(&usersAddAdmin, "admin", false, "Grant admin rights")
	usersAddCmd.MarkFlagRequired("password")
}

func newUserStore() (*auth.Store, func(), error) {
	database, err := openDatabase("")
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	return auth.NewStore(database, 0), func() { database.Close() }, nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	store, closeDB, err := newUserStore()
	if err != nil {
		return err
	}
	defer closeDB()

	users, err := store.ListUsers()
	if err != nil {
		return errors.Wrap(err, "failed to list users")
	}

	if len(users) == 0 {
		fmt.Println("No accounts yet. Create one with: mplan users add NAME --password PASSWORD")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %-5s  %s\n", "ID", "NAME", "ADMIN", "CREATED")
	for _, user := range users {
		admin := ""
		if user.IsAdmin {
			admin = "yes"
		}
		created := time.Unix(user.CreatedAt, 0).Format("2006-01-02")
		fmt.Printf("%-36s  %-20s  %-5s  %s\n", user.ID, user.Name, admin, created)
	}
	return nil
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	store, closeDB, err := newUserStore()
	if err != nil {
		return err
	}
	defer closeDB()

	user, err := store.CreateUser(args[0], usersAddPassword, usersAddAdmin)
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}

	fmt.Printf("%s Created user %s (%s)\n", sym.User, user.Name, user.ID)
	return nil
}

func runUsersRemove(cmd *cobra.Command, args []string) error {
	store, closeDB, err := newUserStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.DeleteUser(args[0]); err != nil {
		return errors.Wrap(err, "failed to delete user")
	}

	fmt.Printf("%s Deleted user %s\n", sym.User, args[0])
	return nil
}
