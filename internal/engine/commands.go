package engine

import (
	"context"
	"strconv"

	"github.com/personyze/tracker-go/internal/command"
	"github.com/personyze/tracker-go/internal/model"
	"github.com/personyze/tracker-go/internal/store"
)

// Navigate records a document view. The next flush replaces the result
// instead of merging into it.
func (e *Engine) Navigate(document string) {
	if document == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.Add(command.Navigate, command.DocumentURNPrefix+document)
	e.navigate = true
}

// LogUserData records a user profile field such as an email address.
func (e *Engine) LogUserData(field, value string) {
	if field == "" {
		return
	}
	e.add(command.UserProfile, field, value)
}

// ProductViewed records that the user viewed a product.
func (e *Engine) ProductViewed(productID string) { e.addWithID(command.ProductViewed, productID) }

// ProductAddedToCart records that the user added a product to the cart.
func (e *Engine) ProductAddedToCart(productID string) {
	e.addWithID(command.ProductAddedToCart, productID)
}

// ProductLiked records that the user liked a product.
func (e *Engine) ProductLiked(productID string) { e.addWithID(command.ProductLiked, productID) }

// ProductPurchased records that the user bought a product.
func (e *Engine) ProductPurchased(productID string) {
	e.addWithID(command.ProductPurchased, productID)
}

// ProductUnliked records that the user withdrew a like.
func (e *Engine) ProductUnliked(productID string) { e.addWithID(command.ProductUnliked, productID) }

// ProductRemovedFromCart records that the user removed a product from the cart.
func (e *Engine) ProductRemovedFromCart(productID string) {
	e.addWithID(command.ProductRemovedFromCart, productID)
}

// ProductsPurchased records that the user bought everything in the cart.
func (e *Engine) ProductsPurchased() { e.add(command.ProductsPurchased) }

// ProductsUnliked records that the user cleared all likes.
func (e *Engine) ProductsUnliked() { e.add(command.ProductsUnliked) }

// ProductsRemovedFromCart records that the user emptied the cart.
func (e *Engine) ProductsRemovedFromCart() { e.add(command.ProductsRemovedFromCart) }

// ArticleViewed records that the user read an article.
func (e *Engine) ArticleViewed(articleID string) { e.addWithID(command.ArticleViewed, articleID) }

// ArticleLiked records that the user liked an article.
func (e *Engine) ArticleLiked(articleID string) { e.addWithID(command.ArticleLiked, articleID) }

// ArticleCommented records that the user commented on an article.
func (e *Engine) ArticleCommented(articleID string) {
	e.addWithID(command.ArticleCommented, articleID)
}

// ArticleUnliked records that the user withdrew a like from an article.
func (e *Engine) ArticleUnliked(articleID string) { e.addWithID(command.ArticleUnliked, articleID) }

// ArticleGoal records that an article goal was reached.
func (e *Engine) ArticleGoal(articleID string) { e.addWithID(command.ArticleGoal, articleID) }

func (e *Engine) addWithID(name, id string) {
	if id == "" {
		return
	}
	e.add(name, id)
}

func (e *Engine) add(fields ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue.Add(fields...)
}

// ReportActionStatus records what happened to a delivered action and sends
// it in the background. Reports already queued since the last navigation
// are not repeated. A "close" with a positive session count in arg also
// suppresses the action for that many sessions.
func (e *Engine) ReportActionStatus(ctx context.Context, actionID int, status, arg string) error {
	if actionID <= 0 || status == "" {
		return nil
	}

	e.mu.Lock()
	if !e.queue.AddActionStatus(actionID, status, arg) {
		e.mu.Unlock()
		return nil
	}
	err := e.blockLocked(ctx, actionID, status, arg)
	e.mu.Unlock()

	e.Done()
	return err
}

// blockLocked records a "close" in the blocked-action ledger.
// Caller must hold e.mu.
func (e *Engine) blockLocked(ctx context.Context, actionID int, status, arg string) error {
	if status != command.StatusClose {
		return nil
	}
	sessions, err := strconv.Atoi(arg)
	if err != nil || sessions <= 0 {
		return nil
	}
	if err := e.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	e.blocked.Block(actionID, sessions)
	return e.kv.Edit(ctx, func(tx *store.Tx) error {
		tx.PutString(model.KeyBlocked, e.blocked.String())
		return nil
	})
}

// ReportActionClicked reports a click posted by rendered action content.
func (e *Engine) ReportActionClicked(ctx context.Context, c model.Clicked) error {
	return e.ReportActionStatus(ctx, c.ActionID, c.Status, c.Arg)
}

// ReportExecuted reports that the action was shown.
func (e *Engine) ReportExecuted(ctx context.Context, actionID int) error {
	return e.ReportActionStatus(ctx, actionID, command.StatusExecuted, "")
}

// ReportClick reports that the user followed the action's target.
func (e *Engine) ReportClick(ctx context.Context, actionID int) error {
	return e.ReportActionStatus(ctx, actionID, command.StatusTarget, "")
}

// ReportClose reports that the user dismissed the action and suppresses it
// for the given number of sessions. Negative counts are treated as 0.
func (e *Engine) ReportClose(ctx context.Context, actionID, sessions int) error {
	return e.ReportActionStatus(ctx, actionID, command.StatusClose, strconv.Itoa(max(sessions, 0)))
}

// ReportProductClick reports a click on a product inside the action.
func (e *Engine) ReportProductClick(ctx context.Context, actionID int, productID string) error {
	return e.ReportActionStatus(ctx, actionID, command.StatusProduct, productID)
}

// ReportArticleClick reports a click on an article inside the action.
func (e *Engine) ReportArticleClick(ctx context.Context, actionID int, articleID string) error {
	return e.ReportActionStatus(ctx, actionID, command.StatusArticle, articleID)
}

// ReportError reports that the host could not show the action.
func (e *Engine) ReportError(ctx context.Context, actionID int, message string) error {
	return e.ReportActionStatus(ctx, actionID, command.StatusError, message)
}
