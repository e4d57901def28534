package relevance

import "testing"

func TestTokenize(t *testing.T) {
	t.Run("drops stopwords and short tokens", func(t *testing.T) {
		tokens := Tokenize("how do I create a button")
		for _, tok := range tokens {
			if tok == "how" || tok == "do" || tok == "a" || tok == "i" {
				t.Errorf("stopword %q survived tokenization", tok)
			}
		}
	})

	t.Run("expands synonyms", func(t *testing.T) {
		set := TermSet("set up auth for the db")
		if !set["authentication"] {
			t.Error("auth should expand to authentication")
		}
		if !set["database"] {
			t.Error("db should expand to database")
		}
	})

	t.Run("splits snake_case identifiers", func(t *testing.T) {
		set := TermSet("call get_user_by_id")
		if !set["user"] {
			t.Errorf("identifier parts should tokenize separately, got %v", set)
		}
	})
}

func TestScore(t *testing.T) {
	t.Run("full coverage", func(t *testing.T) {
		s := Score("postgres connection pool", "configuring the postgres connection pool size")
		if s < 0.99 {
			t.Errorf("expected full coverage, got %f", s)
		}
	})

	t.Run("no overlap", func(t *testing.T) {
		s := Score("react button component", "kafka consumer group rebalancing")
		if s != 0 {
			t.Errorf("expected zero, got %f", s)
		}
	})

	t.Run("partial overlap", func(t *testing.T) {
		s := Score("react button styling", "react component lifecycle")
		if s <= 0 || s >= 1 {
			t.Errorf("expected partial score in (0,1), got %f", s)
		}
	})

	t.Run("stemming matches inflections", func(t *testing.T) {
		s := Score("caching strategy", "the cache strategies we evaluated")
		if s == 0 {
			t.Errorf("stemming should connect caching/cache, got %f", s)
		}
		if got := Score("retry strategy", "documented retry strategies"); got < 0.99 {
			t.Errorf("strategy/strategies should share a stem, got %f", got)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		if Score("", "anything") != 0 {
			t.Error("empty query scores zero")
		}
	})
}

func TestSpecificity(t *testing.T) {
	low := Specificity("create button")
	high := Specificity("implement JWT refresh token rotation for the Express session middleware with Redis storage")

	if low >= high {
		t.Errorf("detailed prompt should be more specific: low=%f high=%f", low, high)
	}
	if high != 1.0 {
		t.Errorf("long technical prompt should saturate at 1.0, got %f", high)
	}
	if Specificity("") != 0 {
		t.Error("empty prompt has zero specificity")
	}
}
