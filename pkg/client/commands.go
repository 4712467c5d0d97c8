package client

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// RootCmd builds the command tree. Every command works offline; writes
// made without a connection are queued and replayed automatically.
func (c *CLI) RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "halolaba",
		Short:         "Point of sale for the shop counter, online or not",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		c.sellCmd(),
		c.restockCmd(),
		c.productsCmd(),
		c.debtCmd(),
		c.expenseCmd(),
		c.dashboardCmd(),
		c.notificationsCmd(),
		c.syncCmd(),
		c.pendingCmd(),
	)
	return root
}

func (c *CLI) sellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sell",
		Short: "Record a sale interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSell(cmd.Context())
		},
	}
}

func (c *CLI) restockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restock",
		Short: "Record a stock purchase interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRestock(cmd.Context())
		},
	}
}

func (c *CLI) productsCmd() *cobra.Command {
	products := &cobra.Command{
		Use:   "products",
		Short: "Manage the product catalog",
	}
	products.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List products",
			RunE: func(cmd *cobra.Command, args []string) error {
				items, err := c.svc.GetProducts(cmd.Context())
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Println("No products yet.")
					return nil
				}
				fmt.Printf("%-28s %6s %6s %10s %10s\n", "NAME", "STOCK", "MIN", "COST", "PRICE")
				for _, p := range items {
					marker := ""
					if p.Stock <= p.MinimalStock {
						marker = "  <- low"
					}
					fmt.Printf("%-28s %6d %6d %10.0f %10.0f%s\n",
						p.Name, p.Stock, p.MinimalStock, p.CostPrice, p.SellingPrice, marker)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add",
			Short: "Add a product interactively",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.runProductAdd(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Remove a product",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				queued, err := c.svc.DeleteProduct(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Product %s deleted%s\n", args[0], queuedSuffix(queued))
				return nil
			},
		},
	)
	return products
}

func (c *CLI) debtCmd() *cobra.Command {
	debt := &cobra.Command{
		Use:   "debt",
		Short: "Manage customer debts",
	}
	debt.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List debts, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				debts, err := c.svc.GetDebts(cmd.Context())
				if err != nil {
					return err
				}
				if len(debts) == 0 {
					fmt.Println("No debts recorded.")
					return nil
				}
				for _, d := range debts {
					fmt.Printf("%-14s %-20s %10.0f  %s\n", d.ID, d.CustomerName, d.Amount, d.Status)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add",
			Short: "Record a sale on credit interactively",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.runDebtAdd(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "pay <id>",
			Short: "Mark a debt as paid",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				queued, err := c.svc.MarkDebtPaid(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Debt %s marked paid%s\n", args[0], queuedSuffix(queued))
				return nil
			},
		},
		&cobra.Command{
			Use:   "unpay <id>",
			Short: "Revert a settlement",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				queued, err := c.svc.MarkDebtUnpaid(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Debt %s marked unpaid%s\n", args[0], queuedSuffix(queued))
				return nil
			},
		},
	)
	return debt
}

func (c *CLI) expenseCmd() *cobra.Command {
	expense := &cobra.Command{
		Use:   "expense",
		Short: "Track operational expenses",
	}
	expense.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List expenses, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				expenses, err := c.svc.GetExpenses(cmd.Context())
				if err != nil {
					return err
				}
				if len(expenses) == 0 {
					fmt.Println("No expenses recorded.")
					return nil
				}
				for _, e := range expenses {
					fmt.Printf("%-14s %-32s %10.0f  %s\n", e.ID, e.Description, e.Amount, e.Category)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add",
			Short: "Record an expense interactively",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.runExpenseAdd(cmd.Context())
			},
		},
	)
	return expense
}

func (c *CLI) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show sales, profit and stock summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := c.svc.DashboardStats(cmd.Context())
			if err != nil {
				return err
			}
			mode := "online"
			if !c.svc.Online() {
				mode = "offline, showing cached data"
			}
			fmt.Printf("Dashboard (%s)\n", mode)
			fmt.Printf("  Revenue:        %10.0f over %d sales\n", stats.Revenue, stats.SaleCount)
			fmt.Printf("  Profit:         %10.0f\n", stats.Profit)
			fmt.Printf("  Expenses:       %10.0f\n", stats.ExpenseTotal)
			fmt.Printf("  Net:            %10.0f\n", stats.Net)
			fmt.Printf("  Low stock:      %10d products\n", stats.LowStockCount)
			fmt.Printf("  Unpaid debts:   %10.0f over %d customers\n", stats.UnpaidDebtTotal, stats.UnpaidDebtCount)
			return nil
		},
	}
}

func (c *CLI) notificationsCmd() *cobra.Command {
	notifications := &cobra.Command{
		Use:   "notifications",
		Short: "Show unread alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := c.svc.GetNotifications(cmd.Context(), true)
			if err != nil {
				return err
			}
			if len(ns) == 0 {
				fmt.Println("No unread notifications.")
				return nil
			}
			for _, n := range ns {
				fmt.Printf("%-14s [%s] %s: %s\n", n.ID, n.Type, n.Title, n.Message)
			}
			return nil
		},
	}
	notifications.AddCommand(&cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queued, err := c.svc.MarkNotificationRead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Notification %s marked read%s\n", args[0], queuedSuffix(queued))
			return nil
		},
	})
	return notifications
}

func (c *CLI) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued writes to the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.svc.Online() {
				fmt.Println("Offline, cannot sync. Queued writes are safe and will sync later.")
				return nil
			}
			if err := c.svc.ForceSync(cmd.Context()); err != nil {
				return err
			}
			ops, err := c.svc.PendingOperations(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Sync finished, %d operations still pending\n", len(ops))
			return nil
		},
	}
}

func (c *CLI) pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show queued writes and abandoned ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := c.svc.PendingOperations(cmd.Context())
			if err != nil {
				return err
			}
			if len(ops) == 0 {
				fmt.Println("Queue is empty.")
			}
			for _, op := range ops {
				fmt.Printf("%s  %-6s %-22s %-14s attempts %d\n",
					time.Unix(0, op.EnqueuedAt).Format("2006-01-02 15:04:05"),
					op.Kind, op.Table, op.TargetID, op.Attempts)
			}

			dead, err := c.svc.DeadLetters(cmd.Context())
			if err != nil {
				return err
			}
			if len(dead) > 0 {
				fmt.Println("Abandoned after repeated rejection:")
				for _, d := range dead {
					fmt.Printf("%s  %-6s %-22s %s\n",
						d.FailedAt.Format("2006-01-02 15:04:05"), d.Kind, d.Table, d.LastError)
				}
			}
			return nil
		},
	}
}
