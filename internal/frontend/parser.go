package frontend

import "fmt"

// ParseError is a syntax error encountered while parsing. Unlike semantic
// check (C1), the parser stops at the first error — a malformed token
// stream gives no reliable footing to keep recovering from.
type ParseError struct {
	Pos     Pos
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Parse error at %s: %s", e.Pos, e.Message)
}

// Parse lexes and parses a complete source file into a Program.
func Parse(source string) (*Program, error) {
	toks, err := Lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []Token
	pos  int
}

func (p *parser) cur() Token  { return p.toks[p.pos] }
func (p *parser) atEnd() bool { return p.cur().Kind == TokEOF }

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) check(k TokenKind) bool { return p.cur().Kind == k }

func (p *parser) match(k TokenKind) bool {
	if p.check(k) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(k TokenKind, what string) (Token, error) {
	if !p.check(k) {
		return Token{}, &ParseError{Pos: p.cur().Pos, Message: fmt.Sprintf("expected %s", what)}
	}
	return p.advance(), nil
}

func (p *parser) expectIdent(what string) (string, error) {
	tok, err := p.expect(TokIdent, what)
	if err != nil {
		return "", err
	}
	return tok.Text, nil
}

func (p *parser) parseProgram() (*Program, error) {
	prog := &Program{}
	for !p.atEnd() {
		switch {
		case p.check(TokPeripheral):
			per, err := p.parsePeripheral()
			if err != nil {
				return nil, err
			}
			prog.Peripherals = append(prog.Peripherals, *per)
		case p.check(TokFn):
			fn, err := p.parseFunction()
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, *fn)
		default:
			return nil, &ParseError{Pos: p.cur().Pos, Message: "expected 'peripheral' or 'fn' declaration"}
		}
	}
	return prog, nil
}

func (p *parser) parseHexOrDecAddress() (uint32, error) {
	tok := p.cur()
	if tok.Kind != TokHex && tok.Kind != TokInt {
		return 0, &ParseError{Pos: tok.Pos, Message: "expected address literal"}
	}
	p.advance()
	return uint32(tok.Int), nil
}

func (p *parser) parsePeripheral() (*Peripheral, error) {
	if _, err := p.expect(TokPeripheral, "'peripheral'"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent("peripheral name")
	if err != nil {
		return nil, err
	}
	per := &Peripheral{Name: name}
	if p.match(TokAt) {
		addr, err := p.parseHexOrDecAddress()
		if err != nil {
			return nil, err
		}
		per.BaseAddress = &addr
	}
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	for !p.check(TokRBrace) {
		switch {
		case p.check(TokStates):
			p.advance()
			if _, err := p.expect(TokColon, "':'"); err != nil {
				return nil, err
			}
			for {
				s, err := p.expectIdent("state name")
				if err != nil {
					return nil, err
				}
				per.States = append(per.States, s)
				if !p.match(TokComma) {
					break
				}
			}
			if _, err := p.expect(TokSemicolon, "';'"); err != nil {
				return nil, err
			}
		case p.check(TokInitial):
			p.advance()
			if _, err := p.expect(TokColon, "':'"); err != nil {
				return nil, err
			}
			s, err := p.expectIdent("initial state name")
			if err != nil {
				return nil, err
			}
			per.InitialState = s
			if _, err := p.expect(TokSemicolon, "';'"); err != nil {
				return nil, err
			}
		case p.check(TokRegisters):
			p.advance()
			width, err := p.parseWidth()
			if err != nil {
				return nil, err
			}
			block := RegisterBlock{Width: width}
			if _, err := p.expect(TokLBrace, "'{'"); err != nil {
				return nil, err
			}
			for !p.check(TokRBrace) {
				regName, err := p.expectIdent("register name")
				if err != nil {
					return nil, err
				}
				if _, err := p.expect(TokAt, "'at'"); err != nil {
					return nil, err
				}
				offset, err := p.parseHexOrDecAddress()
				if err != nil {
					return nil, err
				}
				block.Registers = append(block.Registers, Register{Name: regName, Offset: offset})
				if _, err := p.expect(TokSemicolon, "';'"); err != nil {
					return nil, err
				}
			}
			p.advance() // '}'
			per.RegisterBlocks = append(per.RegisterBlocks, block)
		default:
			return nil, &ParseError{Pos: p.cur().Pos, Message: "expected 'states', 'initial' or 'registers' clause"}
		}
	}
	p.advance() // '}'
	return per, nil
}

func (p *parser) parseWidth() (RegisterWidth, error) {
	switch p.cur().Kind {
	case TokU8:
		p.advance()
		return WidthU8, nil
	case TokU16:
		p.advance()
		return WidthU16, nil
	case TokU32:
		p.advance()
		return WidthU32, nil
	default:
		return 0, &ParseError{Pos: p.cur().Pos, Message: "expected register width (u8, u16 or u32)"}
	}
}

func (p *parser) parseFunction() (*Function, error) {
	if _, err := p.expect(TokFn, "'fn'"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent("function name")
	if err != nil {
		return nil, err
	}
	fn := &Function{Name: name}
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	for !p.check(TokRParen) {
		pname, err := p.expectIdent("parameter name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokColon, "':'"); err != nil {
			return nil, err
		}
		if _, err := p.expect(TokI32, "'i32'"); err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, Param{Name: pname, Type: TypeI32})
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	if p.match(TokDoubleColon) {
		sig, err := p.parseTypeState()
		if err != nil {
			return nil, err
		}
		fn.Signature = sig
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (p *parser) parseTypeState() (*TypeState, error) {
	peripheral, err := p.expectIdent("peripheral name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLAngle, "'<'"); err != nil {
		return nil, err
	}
	in, err := p.expectIdent("input state")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRAngle, "'>'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokArrow, "'->'"); err != nil {
		return nil, err
	}
	if _, err := p.expectIdent2(peripheral); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokLAngle, "'<'"); err != nil {
		return nil, err
	}
	out, err := p.expectIdent("output state")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRAngle, "'>'"); err != nil {
		return nil, err
	}
	return &TypeState{Peripheral: peripheral, InputState: in, OutputState: out}, nil
}

// expectIdent2 consumes the peripheral name repeated on the output side of a
// typestate signature (`P<Sin> -> P<Sout>`) and discards it. The two
// spellings are not compared here, and no later phase compares them either:
// the signature keeps only the first name.
func (p *parser) expectIdent2(_ string) (string, error) {
	return p.expectIdent("peripheral name")
}

func (p *parser) parseBlock() ([]Statement, error) {
	if _, err := p.expect(TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var stmts []Statement
	for !p.check(TokRBrace) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance() // '}'
	return stmts, nil
}

func (p *parser) parseStatement() (Statement, error) {
	switch {
	case p.check(TokLet):
		p.advance()
		name, err := p.expectIdent("variable name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokEquals, "'='"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokSemicolon, "';'"); err != nil {
			return nil, err
		}
		return &LetStmt{VarName: name, Value: val}, nil

	case p.check(TokIf):
		return p.parseIf()

	case p.check(TokWhile):
		p.advance()
		cond, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		body, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body}, nil

	case p.check(TokReturn):
		p.advance()
		if p.match(TokSemicolon) {
			return &ReturnStmt{}, nil
		}
		val, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokSemicolon, "';'"); err != nil {
			return nil, err
		}
		return &ReturnStmt{Value: val}, nil

	case p.check(TokIdent):
		return p.parseIdentLedStatement()

	default:
		return nil, &ParseError{Pos: p.cur().Pos, Message: "expected statement"}
	}
}

// parseIdentLedStatement disambiguates `x = e;`, `P.R = e;` and `e;`
// starting from a leading identifier, per spec.md §6's statement grammar.
func (p *parser) parseIdentLedStatement() (Statement, error) {
	nameTok := p.advance()
	name := nameTok.Text

	if p.check(TokDot) {
		p.advance()
		reg, err := p.expectIdent("register name")
		if err != nil {
			return nil, err
		}
		if p.check(TokEquals) {
			p.advance()
			val, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokSemicolon, "';'"); err != nil {
				return nil, err
			}
			return &PeripheralWriteStmt{Peripheral: name, Register: reg, Value: val}, nil
		}
		// A bare peripheral read used as a statement expression: `P.R;`.
		expr, err := p.finishPostfixAfterPeripheralRead(name, reg)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokSemicolon, "';'"); err != nil {
			return nil, err
		}
		return &ExprStmt{Value: expr}, nil
	}

	if p.check(TokEquals) {
		p.advance()
		val, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokSemicolon, "';'"); err != nil {
			return nil, err
		}
		return &AssignStmt{VarName: name, Value: val}, nil
	}

	expr, err := p.finishPostfixAfterIdent(name, nameTok.Pos)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokSemicolon, "';'"); err != nil {
		return nil, err
	}
	return &ExprStmt{Value: expr}, nil
}

func (p *parser) parseIf() (Statement, error) {
	p.advance() // 'if'
	cond, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	thenBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &IfStmt{Cond: cond, ThenBlock: thenBlock}
	if p.match(TokElse) {
		elseBlock, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.ElseBlock = elseBlock
	}
	return stmt, nil
}

// Pratt expression parsing. Binding powers follow original_source's
// precedence table: unary highest, then * / %, + -, << >>, relational,
// == !=, &, ^, |, &&, || lowest.

func binaryBindingPower(k TokenKind) (left, right int, op BinaryOp, ok bool) {
	switch k {
	case TokOrOr:
		return 1, 2, BinOr, true
	case TokAndAnd:
		return 2, 3, BinAnd, true
	case TokPipe:
		return 3, 4, BinBitOr, true
	case TokCaret:
		return 4, 5, BinBitXor, true
	case TokAmp:
		return 5, 6, BinBitAnd, true
	case TokEq:
		return 6, 7, BinEq, true
	case TokNe:
		return 6, 7, BinNe, true
	case TokLAngle:
		return 7, 8, BinLt, true
	case TokLe:
		return 7, 8, BinLe, true
	case TokRAngle:
		return 7, 8, BinGt, true
	case TokGe:
		return 7, 8, BinGe, true
	case TokShl:
		return 8, 9, BinShl, true
	case TokShr:
		return 8, 9, BinShr, true
	case TokPlus:
		return 9, 10, BinAdd, true
	case TokMinus:
		return 9, 10, BinSub, true
	case TokStar:
		return 10, 11, BinMul, true
	case TokSlash:
		return 10, 11, BinDiv, true
	case TokPercent:
		return 10, 11, BinMod, true
	default:
		return 0, 0, 0, false
	}
}

func (p *parser) parseExpr(minBP int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		lbp, rbp, op, ok := binaryBindingPower(p.cur().Kind)
		if !ok || lbp < minBP {
			break
		}
		p.advance()
		right, err := p.parseExpr(rbp)
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.cur().Kind {
	case TokMinus:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: UnaryNeg, Operand: operand}, nil
	case TokBang:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: UnaryNot, Operand: operand}, nil
	case TokTilde:
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: UnaryBitNot, Operand: operand}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case TokInt, TokHex:
		p.advance()
		return &IntLit{Value: int32(tok.Int)}, nil
	case TokLParen:
		p.advance()
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case TokIdent:
		p.advance()
		if p.check(TokLParen) {
			return p.finishCall(tok.Text)
		}
		if p.check(TokDot) {
			p.advance()
			reg, err := p.expectIdent("register name")
			if err != nil {
				return nil, err
			}
			return p.finishPostfixAfterPeripheralRead(tok.Text, reg)
		}
		return p.finishPostfixAfterIdent(tok.Text, tok.Pos)
	default:
		return nil, &ParseError{Pos: tok.Pos, Message: "expected expression"}
	}
}

// finishPostfixAfterIdent returns a bare Variable reference; kept as a
// named seam so call/peripheral-read disambiguation happens in one place.
func (p *parser) finishPostfixAfterIdent(name string, _ Pos) (Expr, error) {
	return &Variable{Name: name}, nil
}

func (p *parser) finishPostfixAfterPeripheralRead(peripheral, register string) (Expr, error) {
	return &PeripheralRead{Peripheral: peripheral, Register: register}, nil
}

func (p *parser) finishCall(name string) (Expr, error) {
	if _, err := p.expect(TokLParen, "'('"); err != nil {
		return nil, err
	}
	var args []Expr
	for !p.check(TokRParen) {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.match(TokComma) {
			break
		}
	}
	if _, err := p.expect(TokRParen, "')'"); err != nil {
		return nil, err
	}
	return &FnCall{Name: name, Args: args}, nil
}
