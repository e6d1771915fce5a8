// internal/executor/posts.go
// Feed post handlers. The like_post flow verifies that the click actually
// toggled the control by comparing accessibility attributes before and after;
// comment_post and share_post act on the same post enumeration without state
// verification.
package executor

import (
	"context"
	"errors"
	"fmt"

	"webpilot/api/schemas"
)

const (
	// feedContainerSelector marks a loaded feed.
	feedContainerSelector = ".scaffold-finite-scroll__content"
	// postSelector enumerates individual feed posts.
	postSelector = "[data-id^='urn:li:activity']"

	// likePrimarySelectors are tried first within a post; likeFallbackSelectors
	// cover icon-only renderings of the control.
	likePrimarySelectors  = "button.react-button__trigger[aria-label^='React'], button.social-actions-button, button[aria-label*='Like']"
	likeFallbackSelectors = "button:has(svg[data-icon*='thumb']), button:has(img[alt='like'])"

	commentButtonSelectors = "button[aria-label*='Comment'], button.comment-button__trigger"
	commentEditorSelectors = ".comments-comment-box__form .ql-editor, [contenteditable='true']"
	commentSubmitSelectors = "button.comments-comment-box__submit-button, button[aria-label*='Post comment']"
	shareButtonSelectors   = "button[aria-label*='Share'], button.social-reshare-button"
)

// locatePost waits for the feed, enumerates posts, clamps the 1-based index
// into range, scrolls the target post into view and lets it settle. Returns
// the clamped zero-based index.
func (e *Executor) locatePost(ctx context.Context, sess schemas.SessionContext, index int) (int, error) {
	if err := sess.WaitPresent(ctx, feedContainerSelector, e.cfg.FeedTimeout); err != nil {
		return 0, fmt.Errorf("feed did not load: %w", err)
	}

	var count int
	countScript := fmt.Sprintf(`document.querySelectorAll(%q).length`, postSelector)
	if err := sess.Evaluate(ctx, countScript, &count); err != nil {
		return 0, fmt.Errorf("failed to enumerate feed posts: %w", err)
	}
	if count == 0 {
		return 0, errors.New("no posts found in feed")
	}

	if index < 1 {
		index = 1
	}
	idx := index - 1
	if idx > count-1 {
		idx = count - 1
	}

	scrollScript := fmt.Sprintf(
		`document.querySelectorAll(%q)[%d].scrollIntoView({block: 'center'})`,
		postSelector, idx,
	)
	if err := sess.Evaluate(ctx, scrollScript, nil); err != nil {
		return 0, fmt.Errorf("failed to scroll post %d into view: %w", idx+1, err)
	}
	if err := sess.Sleep(ctx, e.cfg.PostSettle); err != nil {
		return 0, err
	}
	return idx, nil
}

// likeControlScript locates the like control of the idx-th post and either
// snapshots its observable attributes or clicks it. Returns null when no
// control matches either selector group.
const likeControlScript = `(function(idx, doClick) {
	const posts = document.querySelectorAll(%q);
	const post = posts[idx];
	if (!post) return null;
	let btn = post.querySelector(%q);
	if (!btn) btn = post.querySelector(%q);
	if (!btn) return null;
	if (doClick) btn.click();
	return {
		aria_pressed: btn.getAttribute('aria-pressed') || '',
		aria_label: btn.getAttribute('aria-label') || '',
		classes: btn.className || ''
	};
})(%d, %t)`

func likeControl(idx int, doClick bool) string {
	return fmt.Sprintf(likeControlScript, postSelector, likePrimarySelectors, likeFallbackSelectors, idx, doClick)
}

// handleLikePost runs the verified like protocol: snapshot, JS click, settle,
// snapshot again, and fail when neither the pressed state nor the accessible
// label moved. Both snapshots ride in the step's debug payload either way.
func (e *Executor) handleLikePost(ctx context.Context, sess schemas.SessionContext, action schemas.Action) (map[string]any, error) {
	idx, err := e.locatePost(ctx, sess, action.Index)
	if err != nil {
		return nil, err
	}

	var before *schemas.ControlSnapshot
	if err := sess.Evaluate(ctx, likeControl(idx, false), &before); err != nil {
		return nil, fmt.Errorf("failed to inspect like control on post %d: %w", idx+1, err)
	}
	if before == nil {
		return nil, fmt.Errorf("like control not found on post %d", idx+1)
	}

	if err := sess.Evaluate(ctx, likeControl(idx, true), nil); err != nil {
		return nil, fmt.Errorf("failed to click like control on post %d: %w", idx+1, err)
	}
	if err := sess.Sleep(ctx, e.cfg.ClickSettle); err != nil {
		return nil, err
	}

	var after *schemas.ControlSnapshot
	if err := sess.Evaluate(ctx, likeControl(idx, false), &after); err != nil {
		return nil, fmt.Errorf("failed to re-inspect like control on post %d: %w", idx+1, err)
	}
	if after == nil {
		return nil, fmt.Errorf("like control disappeared from post %d after click", idx+1)
	}

	debug := map[string]any{
		"post_index": idx + 1,
		"before":     *before,
		"after":      *after,
	}
	if !before.Changed(*after) {
		return debug, fmt.Errorf("like click on post %d produced no observable state change", idx+1)
	}
	return debug, nil
}

// handleCommentPost opens the nth post's comment box, types the text into the
// editor and submits it.
func (e *Executor) handleCommentPost(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	if action.Text == "" {
		return errors.New("comment_post action requires text")
	}
	idx, err := e.locatePost(ctx, sess, action.Index)
	if err != nil {
		return err
	}

	openScript := fmt.Sprintf(`(function(idx) {
		const post = document.querySelectorAll(%q)[idx];
		if (!post) return 'no_post';
		const btn = post.querySelector(%q);
		if (!btn) return 'no_button';
		btn.click();
		return 'ok';
	})(%d)`, postSelector, commentButtonSelectors, idx)

	var status string
	if err := sess.Evaluate(ctx, openScript, &status); err != nil {
		return fmt.Errorf("failed to open comment box on post %d: %w", idx+1, err)
	}
	if status != "ok" {
		return fmt.Errorf("comment control not found on post %d (%s)", idx+1, status)
	}
	if err := sess.Sleep(ctx, e.cfg.ClickSettle); err != nil {
		return err
	}

	submitScript := fmt.Sprintf(`(function(idx, text) {
		const post = document.querySelectorAll(%q)[idx];
		if (!post) return 'no_post';
		const editor = post.querySelector(%q);
		if (!editor) return 'no_editor';
		editor.focus();
		editor.innerHTML = '';
		editor.appendChild(document.createTextNode(text));
		editor.dispatchEvent(new Event('input', { bubbles: true }));
		const submit = post.querySelector(%q);
		if (!submit) return 'no_submit';
		submit.click();
		return 'ok';
	})(%d, %q)`, postSelector, commentEditorSelectors, commentSubmitSelectors, idx, action.Text)

	if err := sess.Evaluate(ctx, submitScript, &status); err != nil {
		return fmt.Errorf("failed to submit comment on post %d: %w", idx+1, err)
	}
	if status != "ok" {
		return fmt.Errorf("comment box not usable on post %d (%s)", idx+1, status)
	}
	return nil
}

// handleSharePost clicks the nth post's share control.
func (e *Executor) handleSharePost(ctx context.Context, sess schemas.SessionContext, action schemas.Action) error {
	idx, err := e.locatePost(ctx, sess, action.Index)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`(function(idx) {
		const post = document.querySelectorAll(%q)[idx];
		if (!post) return 'no_post';
		const btn = post.querySelector(%q);
		if (!btn) return 'no_button';
		btn.click();
		return 'ok';
	})(%d)`, postSelector, shareButtonSelectors, idx)

	var status string
	if err := sess.Evaluate(ctx, script, &status); err != nil {
		return fmt.Errorf("failed to click share control on post %d: %w", idx+1, err)
	}
	if status != "ok" {
		return fmt.Errorf("share control not found on post %d (%s)", idx+1, status)
	}
	return nil
}
