// Package client is the terminal front end: a cobra command tree with
// readline driven interactive flows for checkout, restock and debts.
package client

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"

	"github.com/halolaba/halolaba-client/pkg/models"
	"github.com/halolaba/halolaba-client/pkg/services"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

type CLI struct {
	svc *services.Service
	log *logrus.Logger
	rl  *readline.Instance
}

func NewCLI(svc *services.Service, logger *logrus.Logger) *CLI {
	rl, err := readline.New("> ")
	if err != nil {
		log.Fatal(err)
	}
	return &CLI{svc: svc, log: logger, rl: rl}
}

func (c *CLI) Close() {
	c.rl.Close()
}

// prompt reads one trimmed line under the given prompt.
func (c *CLI) prompt(text string) string {
	c.rl.SetPrompt(text)
	line, _ := c.rl.Readline()
	return strings.TrimSpace(line)
}

// promptInt keeps asking until the answer is a non-negative integer.
func (c *CLI) promptInt(text string) int {
	for {
		answer := c.prompt(text)
		if !digitsOnly.MatchString(answer) {
			fmt.Println("Please enter a whole number!")
			continue
		}
		n, _ := strconv.Atoi(answer)
		return n
	}
}

// promptFloat keeps asking until the answer is a non-negative amount.
func (c *CLI) promptFloat(text string) float64 {
	for {
		answer := c.prompt(text)
		v, err := strconv.ParseFloat(answer, 64)
		if err != nil || v < 0 {
			fmt.Println("Please enter an amount, e.g. 1500 or 1500.50!")
			continue
		}
		return v
	}
}

func queuedSuffix(queued bool) string {
	if queued {
		return " (queued, will sync when back online)"
	}
	return ""
}

// buildCart runs the shared line-item loop: pick a product by number,
// enter a quantity, repeat until an empty answer. restock flips the
// stock adjustment from decrement to increment and skips the stock
// sufficiency check.
func (c *CLI) buildCart(ctx context.Context, restock bool) ([]services.SaleItem, []models.Product, error) {
	products, err := c.svc.GetProducts(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(products) == 0 {
		fmt.Println("No products yet. Add one with: halolaba products add")
		return nil, nil, nil
	}

	fmt.Println("Products:")
	for i, p := range products {
		fmt.Printf("  %2d. %-24s stock %3d  price %.0f\n", i+1, p.Name, p.Stock, p.SellingPrice)
	}

	newStock := make(map[string]int, len(products))
	for _, p := range products {
		newStock[p.ID] = p.Stock
	}

	var (
		items  []services.SaleItem
		picked []models.Product
	)
	for {
		answer := c.prompt("Product number (empty to finish): ")
		if answer == "" {
			return items, picked, nil
		}
		if !digitsOnly.MatchString(answer) {
			fmt.Println("Please enter the product number from the list!")
			continue
		}
		idx, _ := strconv.Atoi(answer)
		if idx < 1 || idx > len(products) {
			fmt.Println("No such product number!")
			continue
		}
		p := products[idx-1]

		qty := c.promptInt(fmt.Sprintf("Quantity of %s: ", p.Name))
		if qty == 0 {
			continue
		}
		if !restock && qty > newStock[p.ID] {
			fmt.Printf("Only %d left in stock!\n", newStock[p.ID])
			continue
		}

		unit := p.SellingPrice
		if restock {
			unit = p.CostPrice
			newStock[p.ID] += qty
		} else {
			newStock[p.ID] -= qty
		}
		items = append(items, services.SaleItem{
			ProductID:  p.ID,
			Quantity:   qty,
			UnitPrice:  unit,
			TotalPrice: unit * float64(qty),
			NewStock:   newStock[p.ID],
		})
		picked = append(picked, p)
	}
}

func (c *CLI) runSell(ctx context.Context) error {
	items, picked, err := c.buildCart(ctx, false)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing sold.")
		return nil
	}

	var total, profit float64
	for i, item := range items {
		total += item.TotalPrice
		profit += (picked[i].SellingPrice - picked[i].CostPrice) * float64(item.Quantity)
	}

	tx, queued, err := c.svc.CreateTransaction(ctx, models.Transaction{
		TotalAmount: total,
		Profit:      profit,
		Type:        "sale",
	}, items)
	if err != nil {
		return err
	}
	fmt.Printf("Sale %s recorded: total %.0f, profit %.0f%s\n",
		tx.ID, total, profit, queuedSuffix(queued))
	return nil
}

func (c *CLI) runRestock(ctx context.Context) error {
	items, _, err := c.buildCart(ctx, true)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing restocked.")
		return nil
	}

	var total float64
	for _, item := range items {
		total += item.TotalPrice
	}

	restock, queued, err := c.svc.CreateRestock(ctx, models.RestockTransaction{
		TotalAmount: total,
	}, items)
	if err != nil {
		return err
	}
	fmt.Printf("Restock %s recorded: total cost %.0f%s\n", restock.ID, total, queuedSuffix(queued))
	return nil
}

func (c *CLI) runDebtAdd(ctx context.Context) error {
	var customer string
	for customer == "" {
		customer = c.prompt("Customer name: ")
	}

	items, _, err := c.buildCart(ctx, false)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing taken on credit.")
		return nil
	}

	var total float64
	for _, item := range items {
		total += item.TotalPrice
	}

	debt, queued, err := c.svc.CreateDebt(ctx, models.Debt{
		CustomerName: customer,
		Amount:       total,
	}, items)
	if err != nil {
		return err
	}
	fmt.Printf("Debt %s recorded for %s: %.0f%s\n", debt.ID, customer, total, queuedSuffix(queued))
	return nil
}

func (c *CLI) runProductAdd(ctx context.Context) error {
	var name string
	for name == "" {
		name = c.prompt("Product name: ")
	}
	stock := c.promptInt("Initial stock: ")
	minimal := c.promptInt("Minimal stock before alerting: ")
	cost := c.promptFloat("Cost price: ")
	selling := c.promptFloat("Selling price: ")

	p, queued, err := c.svc.CreateProduct(ctx, models.Product{
		Name:         name,
		Stock:        stock,
		MinimalStock: minimal,
		CostPrice:    cost,
		SellingPrice: selling,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Product %s added%s\n", p.ID, queuedSuffix(queued))
	return nil
}

func (c *CLI) runExpenseAdd(ctx context.Context) error {
	var description string
	for description == "" {
		description = c.prompt("Description: ")
	}
	amount := c.promptFloat("Amount: ")
	category := c.prompt("Category (optional): ")

	e, queued, err := c.svc.CreateExpense(ctx, models.Expense{
		Description: description,
		Amount:      amount,
		Category:    category,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Expense %s recorded%s\n", e.ID, queuedSuffix(queued))
	return nil
}
